package gateway

import (
	"encoding/base64"
	"strconv"
	"strings"

	"wafa/internal/session"
)

type notifyRequest struct {
	Title       string              `json:"title"`
	Message     string              `json:"message"`
	Attachments []attachmentRequest `json:"attachments"`
	Chats       string              `json:"chats" binding:"required"`
}

type attachmentRequest struct {
	FileName string `json:"filename"`
	Base64   string `json:"base64"`
	MIMEType string `json:"mimetype"`
}

type notification struct {
	text        string
	chats       []string
	attachments []*session.Attachment
}

// validate decodes attachments and splits chats, collecting every problem
// with a JSON pointer to the offending field.
func (r notifyRequest) validate() (notification, []ProblemItem) {
	var (
		n     notification
		items []ProblemItem
	)
	for i, raw := range strings.Split(r.Chats, ",") {
		chat := strings.TrimSpace(raw)
		if chat == "" {
			items = append(items, ProblemItem{Detail: "empty chat id", Pointer: "/chats/" + strconv.Itoa(i)})
			continue
		}
		n.chats = append(n.chats, chat)
	}
	for i, a := range r.Attachments {
		ptr := "/attachments/" + strconv.Itoa(i)
		if strings.TrimSpace(a.FileName) == "" {
			items = append(items, ProblemItem{Detail: "filename is required", Pointer: ptr + "/filename"})
		}
		if strings.TrimSpace(a.MIMEType) == "" {
			items = append(items, ProblemItem{Detail: "mimetype is required", Pointer: ptr + "/mimetype"})
		}
		data, err := base64.StdEncoding.DecodeString(a.Base64)
		if err != nil {
			items = append(items, ProblemItem{Detail: "invalid base64: " + err.Error(), Pointer: ptr + "/base64"})
			continue
		}
		n.attachments = append(n.attachments, &session.Attachment{FileName: a.FileName, Data: data, MIMEType: a.MIMEType})
	}
	return n, items
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
