package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"wafa/internal/session"
	"wafa/pkg/logx"
)

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.sender.Health(); err != nil {
		abortProblem(c, problemFor(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func (s *Server) rateLimit(c *gin.Context) {
	if s.limiter != nil && !s.limiter.Allow() {
		abortProblem(c, Problem{
			Type:   "rate-limited",
			Title:  "Too many requests",
			Detail: "Request rate limit exceeded, retry later.",
			Status: http.StatusTooManyRequests,
		})
		return
	}
	c.Next()
}

func (s *Server) limitBody(c *gin.Context) {
	limit := s.opts.MaxBodySize
	if limit <= 0 {
		c.Next()
		return
	}
	if c.Request.ContentLength > limit {
		abortProblem(c, tooLargeProblem(limit))
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	c.Next()
}

func (s *Server) handleNotify(c *gin.Context) {
	if err := s.sender.Health(); err != nil {
		abortProblem(c, problemFor(err))
		return
	}

	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortProblem(c, tooLargeProblem(tooLarge.Limit))
			return
		}
		abortProblem(c, validationProblem(err.Error()))
		return
	}
	n, items := req.validate()
	if len(items) > 0 {
		abortProblem(c, validationProblem("Your request does not satisfy the defined schema.", items...))
		return
	}
	n.text = s.compose(req.Title, req.Message)

	s.log.Info("sending notification",
		logx.Int("chats", len(n.chats)),
		logx.Int("attachments", len(n.attachments)),
		logx.String("request_id", c.GetString("request_id")))

	if failed := s.fanOut(c, n); len(failed) > 0 {
		abortProblem(c, Problem{
			Type:   string(session.KindDeliveryFailed),
			Title:  "Message could not be delivered.",
			Detail: strconv.Itoa(len(failed)) + " of " + strconv.Itoa(len(n.chats)) + " chats failed.",
			Status: http.StatusServiceUnavailable,
			Errors: failed,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification sent"})
}

// compose bolds a non-empty title above the message.
func (s *Server) compose(title, message string) string {
	if s.md.Enabled() {
		if title != "" {
			return s.md.Render("**" + title + "**\n" + message)
		}
		return s.md.Render(message)
	}
	if title != "" {
		return "*" + title + "*\n" + message
	}
	return message
}

// fanOut delivers n to every chat concurrently. A failing chat does not stop
// the others; its error is reported with a pointer to the chat.
func (s *Server) fanOut(c *gin.Context, n notification) []ProblemItem {
	ctx := c.Request.Context()
	errs := make([]error, len(n.chats))

	g := new(errgroup.Group)
	g.SetLimit(s.opts.SendConcurrency)
	for i, chat := range n.chats {
		g.Go(func() error {
			errs[i] = s.sendTo(ctx, chat, n)
			return nil
		})
	}
	_ = g.Wait()

	var failed []ProblemItem
	for i, err := range errs {
		if err == nil {
			continue
		}
		s.log.Warn("delivery failed", logx.String("chat", n.chats[i]), logx.Err(err))
		failed = append(failed, ProblemItem{Detail: n.chats[i] + ": " + err.Error(), Pointer: "/chats/" + strconv.Itoa(i)})
	}
	return failed
}

func (s *Server) sendTo(ctx context.Context, chat string, n notification) error {
	if len(n.attachments) == 0 {
		return s.sender.Send(ctx, chat, n.text, nil)
	}
	for i, att := range n.attachments {
		text := n.text
		if i > 0 {
			text = ""
		}
		if err := s.sender.Send(ctx, chat, text, att); err != nil {
			return err
		}
	}
	return nil
}
