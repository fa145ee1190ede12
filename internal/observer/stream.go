package observer

import "context"

// Stream filters a Receiver to a set of tables. Lag markers always pass
// through, since the missed changes may have matched.
type Stream struct {
	rx     *Receiver
	tables map[string]struct{}
}

// NewStream filters rx to tables. No tables means no filtering.
func NewStream(rx *Receiver, tables ...string) *Stream {
	s := &Stream{rx: rx}
	if len(tables) > 0 {
		s.tables = make(map[string]struct{}, len(tables))
		for _, t := range tables {
			s.tables[t] = struct{}{}
		}
	}
	return s
}

// Next returns the next matching change or lag marker.
func (s *Stream) Next(ctx context.Context) (Event, error) {
	for {
		ev, err := s.rx.Recv(ctx)
		if err != nil {
			return ev, err
		}
		if ev.IsLagged() || s.matches(ev.Change.Table) {
			return ev, nil
		}
	}
}

// TryNext is Next without blocking. ok is false when nothing matching is
// buffered.
func (s *Stream) TryNext() (ev Event, ok bool, err error) {
	for {
		ev, ok, err = s.rx.TryRecv()
		if err != nil || !ok {
			return ev, ok, err
		}
		if ev.IsLagged() || s.matches(ev.Change.Table) {
			return ev, true, nil
		}
	}
}

func (s *Stream) matches(table string) bool {
	if s.tables == nil {
		return true
	}
	_, ok := s.tables[table]
	return ok
}

// Close closes the underlying receiver.
func (s *Stream) Close() {
	s.rx.Close()
}
