package forge

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/openbraininstitute/entitykit/pkg/jsonld"
)

// ErrDistributionCount is returned when a resource does not have
// exactly one distribution where one is required.
var ErrDistributionCount = errors.New("exactly one distribution is required")

// DatasetPath returns the local path of the only distribution of a resource.
func DatasetPath(r *Resource) (string, error) {
	dists := Distributions(r.Body)
	if len(dists) != 1 {
		return "", fmt.Errorf("%w: resource %s has %d", ErrDistributionCount, r.ID(), len(dists))
	}
	loc, ok := Location(dists[0])
	if !ok {
		return "", fmt.Errorf("distribution of %s has no atLocation.location", r.ID())
	}
	return WithoutFilePrefix(loc), nil
}

// LoadDataset reads the JSON dataset which is the only distribution of a resource.
func LoadDataset(r *Resource) (*jsonld.Object, error) {
	p, err := DatasetPath(r)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := jsonld.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	obj, ok := doc.(*jsonld.Object)
	if !ok {
		return nil, fmt.Errorf("%s: dataset should be an object, but %s", p, jsonld.TypeName(doc))
	}
	return obj, nil
}

// Revision reads a revision marker ("_rev") value.
func Revision(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t == float64(int(t)) {
			return int(t), true
		}
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i), true
		}
	case string:
		if i, err := strconv.Atoi(t); err == nil {
			return i, true
		}
	}
	return 0, false
}

// RevisionOf splits "id?rev=N" into the id and N.
//
// When the id is not qualified with revision, it returns (id, 0, false).
func RevisionOf(id string) (string, int, bool) {
	base, rev, ok := strings.Cut(id, "?rev=")
	if !ok {
		return id, 0, false
	}
	n, err := strconv.Atoi(rev)
	if err != nil {
		return id, 0, false
	}
	return base, n, true
}
