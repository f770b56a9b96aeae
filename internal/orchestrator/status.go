package orchestrator

import (
	"net/http"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/lifeguard/internal/httputil"
)

// Status is a snapshot of the loop for the debug route.
type Status struct {
	Stage      string
	IncidentID string
	Started    time.Time
	Handled    int
	Escalated  int
	Suppressed int
	Aborted    int
	Last       *Incident
}

// Status returns a copy of the current status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.status
	if s.Last != nil {
		last := *s.Last
		s.Last = &last
	}
	return s
}

func (o *Orchestrator) setStage(stage, incidentID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.Stage = stage
	o.status.IncidentID = incidentID
}

func (o *Orchestrator) record(inc Incident) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.Stage = StageIdle
	o.status.IncidentID = ""
	o.status.Handled++
	switch {
	case inc.Aborted:
		o.status.Aborted++
	case inc.Outcome.Escalate:
		o.status.Escalated++
	default:
		o.status.Suppressed++
	}
	o.status.Last = &inc
}

type attemptView struct {
	Contact string `json:"contact"`
	Channel string `json:"channel"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type incidentView struct {
	ID               string        `json:"incident_id"`
	Timestamp        time.Time     `json:"timestamp"`
	Latitude         string        `json:"latitude"`
	Longitude        string        `json:"longitude"`
	ImpactType       string        `json:"impact_type"`
	PassengerCount   int           `json:"passenger_count"`
	PacketComplete   bool          `json:"packet_complete"`
	MovementDetected bool          `json:"movement_detected"`
	PeakScore        int           `json:"peak_score"`
	Outcome          string        `json:"outcome"`
	Aborted          bool          `json:"aborted,omitempty"`
	Reply            string        `json:"reply,omitempty"`
	DispatchStatus   string        `json:"dispatch_status,omitempty"`
	DispatchSummary  string        `json:"dispatch_summary,omitempty"`
	Attempts         []attemptView `json:"attempts,omitempty"`
	Finished         time.Time     `json:"finished"`
}

type statusView struct {
	Stage      string        `json:"stage"`
	IncidentID string        `json:"incident_id,omitempty"`
	Started    time.Time     `json:"started"`
	Handled    int           `json:"handled"`
	Escalated  int           `json:"escalated"`
	Suppressed int           `json:"suppressed"`
	Aborted    int           `json:"aborted"`
	Last       *incidentView `json:"last,omitempty"`
}

func newStatusView(s Status) statusView {
	v := statusView{
		Stage:      s.Stage,
		IncidentID: s.IncidentID,
		Started:    s.Started,
		Handled:    s.Handled,
		Escalated:  s.Escalated,
		Suppressed: s.Suppressed,
		Aborted:    s.Aborted,
	}
	if inc := s.Last; inc != nil {
		iv := &incidentView{
			ID:               inc.Event.ID,
			Timestamp:        inc.Event.Timestamp,
			Latitude:         inc.Event.Latitude,
			Longitude:        inc.Event.Longitude,
			ImpactType:       inc.Event.ImpactType,
			PassengerCount:   inc.Event.PassengerCount,
			PacketComplete:   inc.Collect.Complete,
			MovementDetected: inc.Monitor.MovementDetected,
			PeakScore:        inc.Monitor.PeakScore,
			Outcome:          inc.Outcome.String(),
			Aborted:          inc.Aborted,
			Reply:            inc.Outcome.Reply,
			Finished:         inc.Finished,
		}
		if r := inc.Report; r != nil {
			iv.DispatchStatus = r.Status()
			iv.DispatchSummary = r.Summary()
			for _, a := range r.Attempts {
				av := attemptView{Contact: a.Contact.String(), Channel: string(a.Channel), ID: a.ID}
				if a.Err != nil {
					av.Error = a.Err.Error()
				}
				iv.Attempts = append(iv.Attempts, av)
			}
		}
		v.Last = iv
	}
	return v
}

// AttachAdminRoutes serves the status snapshot as JSON at /debug/lifeguard.
func (o *Orchestrator) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("lifeguard", "accident pipeline status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w, http.MethodGet)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, newStatusView(o.Status()))
	})
}
