package backup

import "time"

// Summary accumulates the outcome of one run.
type Summary struct {
	Discovered int  // expected number of repositories, never lower than Processed
	Processed  int  // repositories a sync was attempted for
	Updated    int  // repositories cloned or updated with new content
	Failed     int  // repositories whose sync returned an error
	Aborted    bool // enumeration failed or run was cancelled before the end
	Started    time.Time
	Elapsed    time.Duration
}

// Complete reports whether the enumeration finished and every discovered
// repository was processed
func (s *Summary) Complete() bool {
	return !s.Aborted && s.Processed == s.Discovered
}

// Status returns "complete" or "incomplete"
func (s *Summary) Status() string {
	if s.Complete() {
		return "complete"
	}
	return "incomplete"
}

// discover updates Discovered from the number of yielded repositories and
// the expected total reported by the iterator
func (s *Summary) discover(yielded, total int) {
	s.Discovered = max(yielded, total, s.Processed)
}
