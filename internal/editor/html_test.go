package editor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseHTMLBuildsTree(t *testing.T) {
	doc, err := ParseHTML("<p>Hi <strong>there</strong></p>")
	if err != nil {
		t.Fatalf("ParseHTML() error = %v", err)
	}
	want := Node{
		Type: NodeDoc,
		Content: []Node{{
			Type: NodeParagraph,
			Content: []Node{
				{Type: NodeText, Text: "Hi "},
				{Type: NodeText, Text: "there", Marks: []Mark{{Type: MarkBold}}},
			},
		}},
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Fatalf("ParseHTML() mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTripIsStable(t *testing.T) {
	cases := []string{
		`<h2 style="text-align: center">Grace</h2>`,
		`<p>To the <strong>clergy</strong> &amp; <em>laity</em><br>of the diocese</p>`,
		`<ul><li><p>One</p></li><li><p>Two</p></li></ul><ol><li><p>Three</p></li></ol>`,
		`<blockquote><p>Peace</p></blockquote>`,
		`<pre><code>x &lt; y</code></pre>`,
		`<p><a href="https://example.org">site</a> <mark data-color="#ffff00" style="background-color: #ffff00">note</mark></p>`,
		`<table><tbody><tr><th><p>Name</p></th></tr><tr><td><p>St Mark</p></td></tr></tbody></table>`,
		`<img src="/uploads/a.jpg" alt="Cathedral"><hr>`,
		`<p><a href="/x"><strong><em><u><s>all</s></u></em></strong></a></p>`,
	}
	for _, input := range cases {
		doc, err := ParseHTML(input)
		if err != nil {
			t.Fatalf("ParseHTML(%q) error = %v", input, err)
		}
		if got := RenderHTML(doc); got != input {
			t.Errorf("round trip:\n got %s\nwant %s", got, input)
		}
	}
}

func TestParseHTMLNormalisesLooseMarkup(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: "<p></p>"},
		{name: "bare text", input: "  Dearly   beloved ", want: "<p>Dearly beloved</p>"},
		{name: "script dropped", input: `<p>ok</p><script>alert(1)</script>`, want: "<p>ok</p>"},
		{name: "div unwrapped", input: `<div><p>a</p><div>b</div></div>`, want: "<p>a</p><p>b</p>"},
		{name: "b and i aliases", input: `<p><b>x</b><i>y</i></p>`, want: "<p><strong>x</strong><em>y</em></p>"},
		{name: "bare list item", input: `<ul><li>one</li></ul>`, want: "<ul><li><p>one</p></li></ul>"},
		{name: "image lifted from paragraph", input: `<p><img src="/a.png"></p>`, want: `<img src="/a.png">`},
		{name: "left alignment omitted", input: `<p style="text-align:left">x</p>`, want: "<p>x</p>"},
		{name: "empty blockquote", input: `<blockquote></blockquote>`, want: "<blockquote><p></p></blockquote>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := ParseHTML(tc.input)
			if err != nil {
				t.Fatalf("ParseHTML() error = %v", err)
			}
			if got := RenderHTML(doc); got != tc.want {
				t.Fatalf("RenderHTML() = %s, want %s", got, tc.want)
			}
		})
	}
}
