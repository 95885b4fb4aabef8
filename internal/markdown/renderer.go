package markdown

import "sync/atomic"

// Renderer applies Convert when enabled. It is safe for concurrent use and
// can be reconfigured at runtime.
type Renderer struct {
	state atomic.Pointer[rendererState]
}

type rendererState struct {
	enabled bool
	dialect Dialect
}

func NewRenderer(enabled bool, d Dialect) *Renderer {
	r := &Renderer{}
	r.Set(enabled, d)
	return r
}

func (r *Renderer) Set(enabled bool, d Dialect) {
	r.state.Store(&rendererState{enabled: enabled, dialect: d})
}

func (r *Renderer) Enabled() bool {
	if r == nil {
		return false
	}
	st := r.state.Load()
	return st != nil && st.enabled
}

// Render converts src, or returns it unchanged when disabled.
func (r *Renderer) Render(src string) string {
	if r == nil {
		return src
	}
	st := r.state.Load()
	if st == nil || !st.enabled {
		return src
	}
	return Convert(src, st.dialect)
}

// ParseDialect maps a config name to a Dialect. Unknown names fall back to
// TelegramHTML.
func ParseDialect(name string) Dialect {
	switch name {
	case "plain", "whatsapp":
		return WhatsApp
	default:
		return TelegramHTML
	}
}
