package markdown

import "testing"

func TestConvertWhatsApp(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name, in, want string
	}{
		{"strong", "**bold**", "*bold*"},
		{"emphasis", "*it* and _it_", "_it_ and _it_"},
		{"strike", "~~gone~~", "~gone~"},
		{"heading", "# Title\n\nbody", "*Title*\nbody"},
		{"inline code", "run `make`", "run `make`"},
		{"fence", "```\nx := 1\n```", "```x := 1```"},
		{"link", "[site](https://example.com)", "[site](https://example.com)"},
		{"reference link", "[site][r]\n\n[r]: https://example.com", "[site](https://example.com)"},
		{"image", "![cat](https://x/cat.png)", "[cat](https://x/cat.png)"},
		{"bullets", "- a\n- b", "- a\n- b"},
		{"ordered", "3. a\n4. b", "3. a\n4. b"},
		{"quote", "> hi", "> hi"},
		{"rule", "a\n\n---\n\nb", "a\n\n---\nb"},
		{"plain", "  hello  ", "hello"},
	}
	for _, tc := range cases {
		if got := Convert(tc.in, WhatsApp); got != tc.want {
			t.Fatalf("%s: Convert(%q) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestConvertTelegramHTML(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name, in, want string
	}{
		{"strong", "**a<b**", "<b>a&lt;b</b>"},
		{"emphasis", "_x_", "<i>x</i>"},
		{"strike", "~~x~~", "<s>x</s>"},
		{"code", "`a&b`", "<code>a&amp;b</code>"},
		{"fence", "```\n<tag>\n```", "<pre>&lt;tag&gt;</pre>"},
		{"link", "[a](https://e.com?q=1&r=2)", `<a href="https://e.com?q=1&amp;r=2">a</a>`},
		{"quote", "> q", "<blockquote>q</blockquote>"},
	}
	for _, tc := range cases {
		if got := Convert(tc.in, TelegramHTML); got != tc.want {
			t.Fatalf("%s: Convert(%q) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestRendererToggle(t *testing.T) {
	r := NewRenderer(false, TelegramHTML)
	if got := r.Render("**x**"); got != "**x**" {
		t.Fatalf("disabled Render = %q", got)
	}
	r.Set(true, TelegramHTML)
	if got := r.Render("**x**"); got != "<b>x</b>" {
		t.Fatalf("html Render = %q", got)
	}
	r.Set(true, WhatsApp)
	if got := r.Render("**x**"); got != "*x*" {
		t.Fatalf("whatsapp Render = %q", got)
	}
	var nilR *Renderer
	if nilR.Render("a") != "a" || nilR.Enabled() {
		t.Fatalf("nil renderer must pass through")
	}
}
