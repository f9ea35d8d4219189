package inbox

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/questline/fedi/internal/snowflake"
)

// ErrNoSubmission is returned by SubmissionID for IRIs that do not name a
// submission.
var ErrNoSubmission = errors.New("not a submission IRI")

// SubmissionID returns the id in a .../submissions/{id} IRI. The id is the
// segment that follows the last "submissions" segment of the path.
func SubmissionID(iri string) (snowflake.ID, error) {
	u, err := url.Parse(iri)
	if err != nil {
		return 0, err
	}
	segments := strings.Split(strings.TrimSuffix(u.Path, "/"), "/")
	for i := len(segments) - 2; i >= 0; i-- {
		if segments[i] != "submissions" {
			continue
		}
		id, err := strconv.ParseUint(segments[i+1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("submission id %q: %w", segments[i+1], err)
		}
		return snowflake.ID(id), nil
	}
	return 0, ErrNoSubmission
}
