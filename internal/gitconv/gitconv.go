// Package gitconv adapts gitlib's VCS-native value types to the types the
// mining pipeline operates on.
package gitconv

import (
	"time"

	"github.com/jlefever/cochange-tool/pkg/gitlib"
)

// AuthorTime returns the author timestamp of a commit, offset-correct.
func AuthorTime(c *gitlib.Commit) time.Time {
	return c.Author().When
}

// CommitTime returns the committer timestamp of a commit, offset-correct.
func CommitTime(c *gitlib.Commit) time.Time {
	return c.Committer().When
}
