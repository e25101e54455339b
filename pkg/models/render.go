package models

// Button is one inline button: a label and the action token it sends back
type Button struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// Render is a transport-neutral "show this to the user" instruction
type Render struct {
	Title   string   `json:"title,omitempty"`
	Message string   `json:"message"`
	Buttons []Button `json:"buttons,omitempty"`
	// Alert marks rejections the transport may show as a popup instead of
	// replacing the current message
	Alert bool `json:"alert,omitempty"`
}

// Text joins title and message the way every transport shows them
func (r Render) Text() string {
	if r.Title == "" {
		return r.Message
	}
	if r.Message == "" {
		return r.Title
	}
	return r.Title + "\n\n" + r.Message
}

// WithButtons returns a copy of r with extra buttons appended
func (r Render) WithButtons(buttons ...Button) Render {
	out := r
	out.Buttons = append(append([]Button(nil), r.Buttons...), buttons...)
	return out
}
