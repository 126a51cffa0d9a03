// Package richtext renders merchant-authored label documents into flat
// fragment sequences for the host checkout renderer.
package richtext

import (
    "encoding/json"
    "strings"
)

// DefaultLabel is rendered when the configured label is absent, malformed,
// or renders to nothing.
const DefaultLabel = "I agree to the terms and conditions"

// Node kinds. Anything else with children is a pass-through container;
// anything else without children is dropped.
const (
    KindRoot   = "root"
    KindText   = "text"
    KindBold   = "bold"
    KindItalic = "italic"
    KindLink   = "link"
)

// Node is one node of a rich-text document tree.
type Node struct {
    Type     string `json:"type"`
    Value    string `json:"value,omitempty"`
    URL      string `json:"url,omitempty"`
    Children []Node `json:"children,omitempty"`
}

// Fragment kinds.
const (
    FragmentText   = "text"
    FragmentBold   = "bold"
    FragmentItalic = "italic"
    FragmentLink   = "link"
)

// Fragment is one renderable piece of a label: plain text, a styled span
// wrapping nested fragments, or a link.
type Fragment struct {
    Kind     string     `json:"kind"`
    Text     string     `json:"text,omitempty"`
    Children []Fragment `json:"children,omitempty"`
    URL      string     `json:"url,omitempty"`
    Target   string     `json:"target,omitempty"`
}

// Render converts a label value into an ordered fragment sequence. The
// input may be a *Node document, a plain string, a JSON-decoded
// map[string]any, or nil. The result is never empty: absent, malformed,
// or empty-rendering input yields the single DefaultLabel fragment.
func Render(input any) []Fragment {
    var frags []Fragment
    switch v := input.(type) {
    case nil:
        // fall through to default
    case string:
        if strings.TrimSpace(v) != "" {
            frags = []Fragment{{Kind: FragmentText, Text: v}}
        }
    case *Node:
        if v != nil {
            frags = convert(*v)
        }
    case Node:
        frags = convert(v)
    case map[string]any:
        if n, ok := Decode(v); ok {
            frags = convert(n)
        }
    }
    frags = prune(frags)
    if len(frags) == 0 {
        return []Fragment{{Kind: FragmentText, Text: DefaultLabel}}
    }
    return frags
}

// convert walks one node and returns its flattened fragments.
func convert(n Node) []Fragment {
    switch n.Type {
    case KindText:
        if n.Value == "" {
            return nil
        }
        return []Fragment{{Kind: FragmentText, Text: n.Value}}
    case KindBold, KindItalic:
        kind := FragmentBold
        if n.Type == KindItalic {
            kind = FragmentItalic
        }
        kids := convertAll(n.Children)
        if len(kids) == 0 {
            if n.Value == "" {
                return nil
            }
            kids = []Fragment{{Kind: FragmentText, Text: n.Value}}
        }
        return []Fragment{{Kind: kind, Children: kids}}
    case KindLink:
        url := n.URL
        if url == "" {
            url = "#"
        }
        target := "_self"
        if strings.HasPrefix(url, "http") {
            target = "_blank"
        }
        text := joinText(convertAll(n.Children))
        if strings.TrimSpace(text) == "" {
            text = n.URL
        }
        if strings.TrimSpace(text) == "" {
            text = "link"
        }
        return []Fragment{{Kind: FragmentLink, Text: text, URL: url, Target: target}}
    default:
        // Generic container: recurse into children. Unrecognized leaves
        // drop.
        if len(n.Children) == 0 {
            return nil
        }
        return convertAll(n.Children)
    }
}

func convertAll(nodes []Node) []Fragment {
    var out []Fragment
    for _, n := range nodes {
        out = append(out, convert(n)...)
    }
    return out
}

// prune removes empty text fragments from a converted sequence.
func prune(frags []Fragment) []Fragment {
    out := frags[:0]
    for _, f := range frags {
        if f.Kind == FragmentText && f.Text == "" {
            continue
        }
        out = append(out, f)
    }
    return out
}

// joinText concatenates the visible text of a fragment sequence.
func joinText(frags []Fragment) string {
    var b strings.Builder
    for _, f := range frags {
        b.WriteString(f.Text)
        b.WriteString(joinText(f.Children))
    }
    return b.String()
}

// PlainText extracts the document-order concatenation of all text node
// values. It is the extraction the settings accessor uses, and for
// text-only documents it equals the joined Render output.
func PlainText(n Node) string {
    if n.Type == KindText {
        return n.Value
    }
    var b strings.Builder
    for _, c := range n.Children {
        b.WriteString(PlainText(c))
    }
    return b.String()
}

// Decode converts a loosely-typed JSON object into a Node tree. It never
// fails on shape: missing fields are zero, non-object children skip.
func Decode(v map[string]any) (Node, bool) {
    raw, err := json.Marshal(v)
    if err != nil {
        return Node{}, false
    }
    var n Node
    if err := json.Unmarshal(raw, &n); err != nil {
        return Node{}, false
    }
    if n.Type == "" && len(n.Children) == 0 && n.Value == "" {
        return Node{}, false
    }
    return n, true
}
