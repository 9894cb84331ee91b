package mail

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"text/template"
	"time"

	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

//go:embed templates/*.md
var templateFS embed.FS

// Each file defines its own "subject", so every file gets its own set.
var templates = func() map[string]*template.Template {
	files, err := fs.Glob(templateFS, "templates/*.md")
	if err != nil {
		panic(err)
	}
	out := make(map[string]*template.Template, len(files))
	for _, f := range files {
		name := path.Base(f)
		out[name] = template.Must(template.New(name).ParseFS(templateFS, f))
	}
	return out
}()

var markdown = goldmark.New()

const layout = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>%s</title></head>
<body style="font-family:-apple-system,Segoe UI,Roboto,sans-serif;line-height:1.6;color:#333;max-width:600px;margin:0 auto">
%s</body></html>
`

// Template names.
const (
	TemplateInvitation      = "invitation.md"
	TemplateOwnerInvitation = "owner_invitation.md"
	TemplateWelcome         = "welcome.md"
)

// InvitationData fills the team invitation template.
type InvitationData struct {
	Product          string
	InviteeName      string
	InviterName      string
	OrganizationName string
	RoleName         string
	RoleDescription  string
	PersonalMessage  string
	AcceptURL        string
	ExpiresAt        time.Time
}

// OwnerInvitationData fills the owner invitation template.
type OwnerInvitationData struct {
	Product          string
	OwnerName        string
	ChampionName     string
	OrganizationName string
	Message          string
	Departments      int
	JobTitles        int
	ReadinessScore   int
	IncludeROI       bool
	HoursSavedWeekly float64
	Timeline         string
	ReviewURL        string
	ExpiresAt        time.Time
}

// WelcomeData fills the welcome template.
type WelcomeData struct {
	Product          string
	UserName         string
	OrganizationName string
}

// Render executes a template and returns a message without recipient. The
// Markdown body becomes the HTML part and its text content the plain part.
func Render(name string, data any) (Message, error) {
	t, ok := templates[name]
	if !ok {
		return Message{}, fmt.Errorf("mail: unknown template %q", name)
	}
	var subject, body bytes.Buffer
	if err := t.ExecuteTemplate(&body, name, data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", name, err)
	}
	if err := t.ExecuteTemplate(&subject, "subject", data); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", name, err)
	}
	var htmlBody bytes.Buffer
	if err := markdown.Convert(bytes.TrimSpace(body.Bytes()), &htmlBody); err != nil {
		return Message{}, fmt.Errorf("convert %s: %w", name, err)
	}
	text, err := PlainText(htmlBody.String())
	if err != nil {
		return Message{}, err
	}
	subj := strings.TrimSpace(subject.String())
	return Message{
		Subject: subj,
		HTML:    fmt.Sprintf(layout, html.EscapeString(subj), htmlBody.String()),
		Text:    text,
	}, nil
}

// PlainText flattens an HTML fragment into readable text: one block per
// paragraph, "- " bullets and links followed by their target.
func PlainText(source string) (string, error) {
	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return "", err
	}
	var blocks []string
	walkBlocks(doc, &blocks)
	return strings.Join(blocks, "\n\n"), nil
}

func walkBlocks(n *html.Node, blocks *[]string) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.P, atom.Blockquote:
			if t := inlineText(n); t != "" {
				*blocks = append(*blocks, t)
			}
			return
		case atom.Ul, atom.Ol:
			var items []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.DataAtom == atom.Li {
					items = append(items, "- "+inlineText(c))
				}
			}
			if len(items) > 0 {
				*blocks = append(*blocks, strings.Join(items, "\n"))
			}
			return
		case atom.Style, atom.Script, atom.Head:
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkBlocks(c, blocks)
	}
}

func inlineText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
		if n.DataAtom == atom.A {
			for _, a := range n.Attr {
				if a.Key == "href" && a.Val != "" {
					fmt.Fprintf(&sb, " (%s)", a.Val)
				}
			}
		}
	}
	f(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
