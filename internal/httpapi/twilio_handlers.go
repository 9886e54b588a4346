package httpapi

import (
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/sotto-ai/sotto/internal/eventlog"
	"github.com/sotto-ai/sotto/internal/store"
)

// Minimal TwiML (enough to start Media Streams).
// Twilio expects Content-Type: text/xml.
type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Connect *twimlConnect `xml:"Connect,omitempty"`
	Reject  *twimlReject  `xml:"Reject,omitempty"`
}

type twimlReject struct {
	Reason string `xml:"reason,attr,omitempty"` // "rejected" or "busy"
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter,omitempty"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

func writeTwiML(w http.ResponseWriter, resp twimlResponse) {
	out, _ := xml.MarshalIndent(resp, "", "  ")
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}

func (r *Router) handleTwilioInbound(w http.ResponseWriter, req *http.Request) {
	// Twilio sends application/x-www-form-urlencoded by default.
	if err := req.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	if !r.verifyTwilioSignature(req) {
		r.logger.Printf("inbound: invalid Twilio signature")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	// During drain no new streams are accepted. The call rings through
	// unassisted rather than connecting to a dying instance.
	if r.calls.IsDraining() {
		r.logger.Printf("inbound: draining, rejecting call")
		writeTwiML(w, twimlResponse{Reject: &twimlReject{Reason: "busy"}})
		return
	}

	callSid := req.FormValue("CallSid")
	from := req.FormValue("From")
	to := req.FormValue("To")

	if callSid == "" {
		http.Error(w, "missing CallSid", http.StatusBadRequest)
		return
	}

	r.logger.Printf("inbound: call %s from %s to %s", callSid, from, to)

	if r.store != nil {
		if err := r.store.UpsertCall(req.Context(), store.Call{
			Provider:       "twilio",
			ProviderCallID: callSid,
			FromNumber:     from,
			ToNumber:       to,
			Status:         "in_progress",
			StartedAt:      time.Now().UTC(),
		}); err != nil {
			r.logger.Printf("inbound: failed to store call %s: %v", callSid, err)
			captureError(req, err, "inbound: failed to store call")
		}

		if r.eventLog != nil {
			if callID, err := r.store.GetCallID(req.Context(), callSid); err == nil {
				r.eventLog.LogAsync(callID, eventlog.EventCallStarted, map[string]any{
					"from": from,
					"to":   to,
				})
			}
		}
	}

	// Start a media stream to our websocket.
	wsBase := wsURLFromPublicBase(r.cfg.PublicBaseURL)
	mediaURL := strings.TrimRight(wsBase, "/") + "/media"

	writeTwiML(w, twimlResponse{
		Connect: &twimlConnect{
			Stream: twimlStream{
				URL: mediaURL,
				Parameters: []twimlParameter{
					{Name: "callSid", Value: callSid},
				},
			},
		},
	})
}

func (r *Router) handleTwilioStatus(w http.ResponseWriter, req *http.Request) {
	_ = req.ParseForm()

	if !r.verifyTwilioSignature(req) {
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	callSid := req.FormValue("CallSid")
	status := req.FormValue("CallStatus") // queued/ringing/in-progress/completed/...

	if callSid != "" && status != "" && r.store != nil {
		_ = r.store.UpdateCallStatus(req.Context(), callSid, status, time.Now().UTC())
	}

	w.WriteHeader(http.StatusNoContent)
}
