// internal/page/forms.go
package page

import (
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Form is a <form> element found on a Document.
type Form struct {
	Node   *html.Node
	Action string
	Method string
}

func newForm(n *html.Node) *Form {
	method := strings.ToUpper(strings.TrimSpace(attr(n, "method")))
	if method == "" {
		method = "GET"
	}
	return &Form{Node: n, Action: attr(n, "action"), Method: method}
}

// HiddenFields collects the name/value pairs of every hidden input in the form.
func (f *Form) HiddenFields() url.Values {
	values := url.Values{}
	for _, input := range htmlquery.Find(f.Node, ".//input") {
		if !strings.EqualFold(attr(input, "type"), "hidden") {
			continue
		}
		name := attr(input, "name")
		if name == "" {
			continue
		}
		values.Add(name, attr(input, "value"))
	}
	return values
}

// Text returns the visible text of the form.
func (f *Form) Text() string {
	return nodeText(f.Node)
}

// HasField reports whether the form has an input, select or textarea named name.
func (f *Form) HasField(name string) bool {
	for _, n := range htmlquery.Find(f.Node, ".//input | .//select | .//textarea") {
		if attr(n, "name") == name {
			return true
		}
	}
	return false
}

// SubmitControl is a clickable control that submits its form.
type SubmitControl struct {
	Node  *html.Node
	Name  string
	Value string
	Form  *Form
}

// Forms returns every form on the page in document order.
func (d *Document) Forms() []*Form {
	var forms []*Form
	for _, n := range htmlquery.Find(d.Root, "//form") {
		forms = append(forms, newForm(n))
	}
	return forms
}

// SubmitControls returns every submit control that sits inside a form.
func (d *Document) SubmitControls() []*SubmitControl {
	var controls []*SubmitControl
	for _, n := range htmlquery.Find(d.Root, "//*[self::input or self::button]") {
		if !isSubmit(n) {
			continue
		}
		form := findParentForm(n)
		if form == nil {
			continue
		}
		value := attr(n, "value")
		if value == "" && strings.EqualFold(n.Data, "button") {
			value = nodeText(n)
		}
		controls = append(controls, &SubmitControl{
			Node:  n,
			Name:  attr(n, "name"),
			Value: value,
			Form:  newForm(form),
		})
	}
	return controls
}

// LoginForm finds the login form: named "login" or with an action mentioning login.
func (d *Document) LoginForm() (*Form, bool) {
	for _, f := range d.Forms() {
		if strings.EqualFold(attr(f.Node, "name"), "login") ||
			strings.Contains(strings.ToLower(f.Action), "login") {
			return f, true
		}
	}
	return nil, false
}

// BuildControl finds the first submit control whose enclosing form text
// contains building, compared case-insensitively.
func (d *Document) BuildControl(building string) (*SubmitControl, bool) {
	needle := strings.ToLower(strings.TrimSpace(building))
	if needle == "" {
		return nil, false
	}
	for _, c := range d.SubmitControls() {
		if strings.Contains(strings.ToLower(c.Form.Text()), needle) {
			return c, true
		}
	}
	return nil, false
}

// FormByAction returns the first form whose action contains fragment.
func (d *Document) FormByAction(fragment string) (*Form, bool) {
	for _, f := range d.Forms() {
		if strings.Contains(f.Action, fragment) {
			return f, true
		}
	}
	return nil, false
}

func isSubmit(n *html.Node) bool {
	inputType := strings.ToLower(attr(n, "type"))
	switch strings.ToLower(n.Data) {
	case "button":
		return inputType == "submit" || inputType == ""
	case "input":
		return inputType == "submit" || inputType == "image"
	}
	return false
}

func findParentForm(element *html.Node) *html.Node {
	form := element.Parent
	for form != nil {
		if form.Type == html.ElementNode && strings.ToLower(form.Data) == "form" {
			return form
		}
		form = form.Parent
	}
	return nil
}
