package model

// PayloadKind is the kind of structured card a reply carries to the UI.
type PayloadKind string

const (
	PayloadBooking         PayloadKind = "booking"
	PayloadAppointmentList PayloadKind = "appointment_list"
	PayloadCancellation    PayloadKind = "cancellation"
	PayloadImage           PayloadKind = "image"
)

// UIPayload is a structured card produced by a tool call.
type UIPayload struct {
	Kind         PayloadKind   `json:"kind"`
	Appointment  *Appointment  `json:"appointment,omitempty"`
	Appointments []Appointment `json:"appointments,omitempty"`
	Image        string        `json:"image,omitempty"`
}

// Reply is the assistant's answer to one user message together with every
// payload produced while answering it, in the order the tools ran.
type Reply struct {
	Text     string      `json:"text"`
	Payloads []UIPayload `json:"payloads,omitempty"`
}

func (r *Reply) last(kind PayloadKind) *UIPayload {
	for i := len(r.Payloads) - 1; i >= 0; i-- {
		if r.Payloads[i].Kind == kind {
			return &r.Payloads[i]
		}
	}
	return nil
}

// BookingDetails returns the most recent booking card, if any.
func (r *Reply) BookingDetails() *Appointment {
	if p := r.last(PayloadBooking); p != nil {
		return p.Appointment
	}
	return nil
}

// AppointmentList returns the most recent appointment list, if any.
func (r *Reply) AppointmentList() []Appointment {
	if p := r.last(PayloadAppointmentList); p != nil {
		return p.Appointments
	}
	return nil
}

// CancellationDetails returns the most recent cancellation card, if any.
func (r *Reply) CancellationDetails() *Appointment {
	if p := r.last(PayloadCancellation); p != nil {
		return p.Appointment
	}
	return nil
}

// GeneratedImage returns the most recent base64 image, if any.
func (r *Reply) GeneratedImage() string {
	if p := r.last(PayloadImage); p != nil {
		return p.Image
	}
	return ""
}

// CreateSessionRequest is the request to open an assistant session.
type CreateSessionRequest struct {
	Language string `json:"language,omitempty"`
}

// CreateSessionResponse is the response after opening a session.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	Language  string `json:"language"`
}

// SendMessageRequest is the request to send a message to the assistant.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SetLanguageRequest switches the persona language of a session.
type SetLanguageRequest struct {
	Language string `json:"language"`
}

// SetProfileRequest refreshes or clears the profile injected into a session.
type SetProfileRequest struct {
	Anonymous bool `json:"anonymous"`
}
