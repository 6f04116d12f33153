package elks

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Webhook forms, decoded from the provider's form-encoded POSTs.
// Field aliases are provider-specific ("from"/"to"/"id"); anything the
// flow engine consumes is translated to neutral names here so a second
// provider could feed the same engine.

// MenuForm is the voice-start callback: the user answered and the IVR
// can begin.
type MenuForm struct {
	CallID    string
	Direction string
	From      string
	To        string
	Result    string // always "newoutgoing" for outbound calls
}

func ParseMenuForm(r *http.Request) (MenuForm, error) {
	if err := r.ParseForm(); err != nil {
		return MenuForm{}, err
	}
	f := MenuForm{
		CallID:    r.PostFormValue("callid"),
		Direction: r.PostFormValue("direction"),
		From:      r.PostFormValue("from"),
		To:        r.PostFormValue("to"),
		Result:    r.PostFormValue("result"),
	}
	if f.CallID == "" {
		return MenuForm{}, fmt.Errorf("elks: menu form missing callid")
	}
	if f.Result != "newoutgoing" {
		return MenuForm{}, fmt.Errorf("elks: unexpected menu result %q", f.Result)
	}
	return f, nil
}

// DigitForm is any digit-collection callback. Result carries the digit,
// or "failed" with Why="noinput" when the IVR timed out.
type DigitForm struct {
	CallID    string
	Direction string
	From      string
	To        string
	Result    string
	Why       string
}

func ParseDigitForm(r *http.Request) (DigitForm, error) {
	if err := r.ParseForm(); err != nil {
		return DigitForm{}, err
	}
	f := DigitForm{
		CallID:    r.PostFormValue("callid"),
		Direction: r.PostFormValue("direction"),
		From:      r.PostFormValue("from"),
		To:        r.PostFormValue("to"),
		Result:    r.PostFormValue("result"),
		Why:       r.PostFormValue("why"),
	}
	if f.CallID == "" {
		return DigitForm{}, fmt.Errorf("elks: digit form missing callid")
	}
	return f, nil
}

// NoInput reports the IVR-timeout variant (user on voice mail, or no
// digit entered within the prompt window).
func (f DigitForm) NoInput() bool {
	return f.Result == "failed" && f.Why == "noinput"
}

// HangupForm is the unconditional terminal callback. The call id
// arrives under "id" here, unlike the other callbacks. Start is zero
// when the provider reports a failed call (no user leg was ever
// established).
type HangupForm struct {
	CallID    string
	Direction string
	Created   time.Time
	From      string
	To        string
	State     string

	Start    time.Time
	Actions  string
	Cost     int // in 1/100 cent
	Duration int // in seconds
	Legs     string
}

func ParseHangupForm(r *http.Request) (HangupForm, error) {
	if err := r.ParseForm(); err != nil {
		return HangupForm{}, err
	}
	f := HangupForm{
		CallID:    r.PostFormValue("id"),
		Direction: r.PostFormValue("direction"),
		Created:   parseElksTime(r.PostFormValue("created")),
		From:      r.PostFormValue("from"),
		To:        r.PostFormValue("to"),
		State:     r.PostFormValue("state"),
		Start:     parseElksTime(r.PostFormValue("start")),
		Actions:   r.PostFormValue("actions"),
		Cost:      atoiOrZero(r.PostFormValue("cost")),
		Duration:  atoiOrZero(r.PostFormValue("duration")),
		Legs:      r.PostFormValue("legs"),
	}
	if f.CallID == "" {
		return HangupForm{}, fmt.Errorf("elks: hangup form missing id")
	}
	return f, nil
}

// Failed reports a hangup that signals the call never went through.
func (f HangupForm) Failed() bool {
	return f.Start.IsZero()
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
