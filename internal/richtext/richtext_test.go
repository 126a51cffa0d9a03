package richtext

import (
    "reflect"
    "testing"
)

func TestRenderTextOnlyMatchesPlainText(t *testing.T) {
    doc := Node{Type: KindRoot, Children: []Node{
        {Type: KindText, Value: "I agree to the "},
        {Type: KindText, Value: "terms"},
        {Type: KindText, Value: "."},
    }}
    frags := Render(doc)
    var joined string
    for _, f := range frags {
        joined += f.Text
    }
    if joined != PlainText(doc) {
        t.Fatalf("joined render %q != plain text %q", joined, PlainText(doc))
    }
}

func TestRenderFallsBackToDefaultLabel(t *testing.T) {
    cases := []any{
        nil,
        "",
        "   ",
        Node{},
        Node{Type: KindRoot},
        Node{Type: KindRoot, Children: []Node{{Type: KindText}}},
        Node{Type: "video"}, // unrecognized leaf
        map[string]any{"bogus": true},
    }
    for i, in := range cases {
        got := Render(in)
        if len(got) != 1 || got[0].Kind != FragmentText || got[0].Text != DefaultLabel {
            t.Fatalf("case %d: want single default fragment, got %+v", i, got)
        }
    }
}

func TestRenderPlainString(t *testing.T) {
    got := Render("Accept the house rules")
    if len(got) != 1 || got[0].Text != "Accept the house rules" {
        t.Fatalf("got %+v", got)
    }
}

func TestRenderStyledFragments(t *testing.T) {
    doc := Node{Type: KindRoot, Children: []Node{
        {Type: KindText, Value: "I agree to the "},
        {Type: KindBold, Children: []Node{{Type: KindText, Value: "terms"}}},
        {Type: KindItalic, Value: "really"},
    }}
    got := Render(doc)
    if len(got) != 3 {
        t.Fatalf("want 3 fragments, got %+v", got)
    }
    if got[1].Kind != FragmentBold || len(got[1].Children) != 1 || got[1].Children[0].Text != "terms" {
        t.Fatalf("bold fragment wrong: %+v", got[1])
    }
    if got[2].Kind != FragmentItalic || got[2].Children[0].Text != "really" {
        t.Fatalf("italic raw-value fragment wrong: %+v", got[2])
    }
}

func TestRenderLinkTargets(t *testing.T) {
    external := Render(Node{Type: KindLink, URL: "https://example.com/terms", Children: []Node{{Type: KindText, Value: "terms"}}})
    if external[0].Target != "_blank" || external[0].URL != "https://example.com/terms" || external[0].Text != "terms" {
        t.Fatalf("external link wrong: %+v", external[0])
    }
    internal := Render(Node{Type: KindLink, URL: "/policies/terms", Children: []Node{{Type: KindText, Value: "terms"}}})
    if internal[0].Target != "_self" {
        t.Fatalf("internal link wrong: %+v", internal[0])
    }
}

func TestRenderLinkTextFallbacks(t *testing.T) {
    // No children: text falls back to the URL
    byURL := Render(Node{Type: KindLink, URL: "https://example.com"})
    if byURL[0].Text != "https://example.com" {
        t.Fatalf("want URL fallback, got %+v", byURL[0])
    }
    // No children and no URL: literal "link", URL "#"
    bare := Render(Node{Type: KindLink})
    if bare[0].Text != "link" || bare[0].URL != "#" || bare[0].Target != "_self" {
        t.Fatalf("bare link wrong: %+v", bare[0])
    }
}

func TestRenderFlattensContainers(t *testing.T) {
    doc := Node{Type: KindRoot, Children: []Node{
        {Type: "paragraph", Children: []Node{
            {Type: KindText, Value: "first"},
            {Type: "span", Children: []Node{{Type: KindText, Value: "second"}}},
        }},
    }}
    got := Render(doc)
    if len(got) != 2 || got[0].Text != "first" || got[1].Text != "second" {
        t.Fatalf("container flatten wrong: %+v", got)
    }
}

func TestRenderIdempotent(t *testing.T) {
    doc := Node{Type: KindRoot, Children: []Node{
        {Type: KindText, Value: "I agree"},
        {Type: KindLink, URL: "https://example.com", Children: []Node{{Type: KindText, Value: "terms"}}},
    }}
    a := Render(doc)
    b := Render(doc)
    if !reflect.DeepEqual(a, b) {
        t.Fatalf("render not idempotent: %+v vs %+v", a, b)
    }
}

func TestDecode(t *testing.T) {
    n, ok := Decode(map[string]any{
        "type": "root",
        "children": []any{
            map[string]any{"type": "text", "value": "hi"},
        },
    })
    if !ok || len(n.Children) != 1 || n.Children[0].Value != "hi" {
        t.Fatalf("decode wrong: ok=%v n=%+v", ok, n)
    }
    if _, ok := Decode(map[string]any{"unrelated": 1}); ok {
        t.Fatalf("shapeless object should not decode")
    }
}
