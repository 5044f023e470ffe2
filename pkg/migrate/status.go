package migrate

import (
	"fmt"
	"time"
)

type StatusLine struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

func (s StatusLine) String() string {
	if !s.Applied {
		return fmt.Sprintf("%-14d pending                    %s", s.Version, s.Path)
	}
	return fmt.Sprintf("%-14d applied %s  %s", s.Version, s.AppliedAt.UTC().Format(time.RFC3339), s.Path)
}
