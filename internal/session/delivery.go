package session

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"wafa/internal/eventbus"
	"wafa/internal/observability"
	"wafa/internal/transport"
	"wafa/pkg/logx"
)

// Attachment is one file to deliver.
type Attachment struct {
	FileName string
	Data     []byte
	MIMEType string
}

// Delivery is the payload of eventbus.TypeDelivered and
// eventbus.TypeDeliveryFailed.
type Delivery struct {
	Destination string
	Kind        string
	Err         error
}

// Send delivers text and an optional attachment to dest. The attachment's
// MIME type picks the payload kind. Empty text without an attachment sends
// nothing. Every failure is a KindDeliveryFailed *Error.
func (m *Manager) Send(ctx context.Context, dest, text string, att *Attachment) error {
	payloads, kind := m.plan(text, att, m.textFormat())
	return m.deliver(ctx, dest, kind, payloads)
}

// SendText sends plain unformatted text. It lets the manager serve as the
// log chat sink.
func (m *Manager) SendText(ctx context.Context, dest, text string) error {
	payloads, kind := m.plan(text, nil, transport.FormatPlain)
	return m.deliver(ctx, dest, kind, payloads)
}

func (m *Manager) plan(text string, att *Attachment, f transport.Format) ([]transport.Payload, string) {
	if att == nil {
		if text == "" {
			return nil, string(transport.PayloadText)
		}
		return []transport.Payload{{Kind: transport.PayloadText, Text: text, Format: f}}, string(transport.PayloadText)
	}

	mime := strings.ToLower(att.MIMEType)
	switch {
	case strings.HasPrefix(mime, "image/"):
		data, err := transcodePNG(att.Data)
		if err != nil {
			m.log.Warn("image transcode failed, sending as document",
				logx.String("file", att.FileName), logx.String("mime", att.MIMEType), logx.Err(err))
			return []transport.Payload{documentPayload(text, att, f)}, string(transport.PayloadDocument)
		}
		return []transport.Payload{{
			Kind:     transport.PayloadImage,
			Caption:  text,
			Data:     data,
			FileName: pngName(att.FileName),
			MIMEType: "image/png",
			Format:   f,
		}}, string(transport.PayloadImage)

	case strings.HasPrefix(mime, "video/"):
		return []transport.Payload{{
			Kind:     transport.PayloadVideo,
			Caption:  text,
			Data:     att.Data,
			FileName: att.FileName,
			MIMEType: att.MIMEType,
			Format:   f,
		}}, string(transport.PayloadVideo)

	case strings.HasPrefix(mime, "audio/"):
		// audio carries no caption
		var out []transport.Payload
		if text != "" {
			out = append(out, transport.Payload{Kind: transport.PayloadText, Text: text, Format: f})
		}
		out = append(out, transport.Payload{
			Kind:     transport.PayloadAudio,
			Data:     att.Data,
			FileName: att.FileName,
			MIMEType: att.MIMEType,
		})
		return out, string(transport.PayloadAudio)
	}
	return []transport.Payload{documentPayload(text, att, f)}, string(transport.PayloadDocument)
}

func documentPayload(text string, att *Attachment, f transport.Format) transport.Payload {
	return transport.Payload{
		Kind:     transport.PayloadDocument,
		Caption:  text,
		Data:     att.Data,
		FileName: att.FileName,
		MIMEType: att.MIMEType,
		Format:   f,
	}
}

func (m *Manager) deliver(ctx context.Context, dest, kind string, payloads []transport.Payload) (err error) {
	if len(payloads) == 0 {
		return nil
	}
	ctx, span := observability.Tracer().Start(ctx, "session.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("destination", dest),
			attribute.String("payload.kind", kind),
			attribute.Int("payload.count", len(payloads)),
		),
	)
	start := time.Now()
	defer func() {
		observability.RecordDelivery(kind, err == nil, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			m.log.Debug("delivery failed", logx.String("destination", dest), logx.String("kind", kind), logx.Err(err))
			m.bus.Publish(eventbus.Event{Type: eventbus.TypeDeliveryFailed, Data: Delivery{Destination: dest, Kind: kind, Err: err}})
		} else {
			m.bus.Publish(eventbus.Event{Type: eventbus.TypeDelivered, Data: Delivery{Destination: dest, Kind: kind}})
		}
		span.End()
	}()

	ref := m.sock.Load()
	if ref == nil {
		return newError(KindDeliveryFailed, "session not established", nil)
	}
	for _, p := range payloads {
		if err := ref.socket.Send(ctx, dest, p); err != nil {
			return newError(KindDeliveryFailed, "could not send "+string(p.Kind)+" message", err)
		}
	}
	return nil
}
