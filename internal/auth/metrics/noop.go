package metrics

import "time"

// Noop discards everything.
type Noop struct{}

var _ Recorder = Noop{}

func (Noop) RecordTokenIssued(string, bool, time.Duration)        {}
func (Noop) RecordGrantFailure(string, string)                    {}
func (Noop) RecordCodeIssued()                                    {}
func (Noop) RecordCodeConsumed(string)                            {}
func (Noop) RecordIntrospection(string, string)                   {}
func (Noop) RecordSSOLogin(bool)                                  {}
func (Noop) RecordSSOLogout(int)                                  {}
func (Noop) RecordKeyRotation(bool)                               {}
func (Noop) RecordSweep(string, int64)                            {}
func (Noop) RecordHTTPRequest(string, string, int, time.Duration) {}

// OrNoop returns r, or Noop when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return Noop{}
	}
	return r
}
