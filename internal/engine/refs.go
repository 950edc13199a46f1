package engine

import (
	"fmt"
	"regexp"

	"github.com/picklr-io/reportchain/pkg/resource"
)

// refScheme prefixes a placeholder that is replaced with an attribute of a
// previously created resource: ref://<spec name>/<attribute>.
const refScheme = "ref://"

var refPattern = regexp.MustCompile(`ref://([A-Za-z0-9_.\-]+)/([A-Za-z0-9_\-]+)`)

// Ref builds a placeholder for attribute attr of the resource created from the
// spec named name.
func Ref(name, attr string) string {
	return fmt.Sprintf("%s%s/%s", refScheme, name, attr)
}

type reference struct {
	name string
	attr string
}

// specFields returns pointers to every string field of s that may carry
// placeholders.
func specFields(s *resource.Spec) []*string {
	fields := []*string{&s.Namespace}
	if c := s.Collection; c != nil {
		fields = append(fields, &c.SourceURI, &c.Format, &c.Transformation)
	}
	if q := s.Query; q != nil {
		fields = append(fields, &q.SQL)
		for i := range q.Parameters {
			fields = append(fields, &q.Parameters[i].Default)
		}
	}
	if a := s.Automation; a != nil {
		fields = append(fields, &a.Schedule, &a.QueryName, &a.QueryVersion)
		if cb := a.Callback; cb != nil {
			fields = append(fields, &cb.URL, &cb.AuthToken, &cb.BodyTemplate)
		}
	}
	return fields
}

// extractRefs returns the placeholders found in a spec, in field order.
func extractRefs(s resource.Spec) []reference {
	var refs []reference
	for _, f := range specFields(&s) {
		for _, m := range refPattern.FindAllStringSubmatch(*f, -1) {
			refs = append(refs, reference{name: m[1], attr: m[2]})
		}
	}
	return refs
}

// resolveRefs returns a copy of s with every placeholder replaced by the value of
// the referenced handle attribute. The original spec is not modified, so values
// substituted here never change afterwards.
func resolveRefs(s resource.Spec, created map[string]resource.Handle) (resource.Spec, error) {
	out := s.Clone()

	var firstErr error
	for _, f := range specFields(&out) {
		*f = refPattern.ReplaceAllStringFunc(*f, func(match string) string {
			m := refPattern.FindStringSubmatch(match)
			h, ok := created[m[1]]
			if !ok {
				if firstErr == nil {
					firstErr = resource.Validationf("%s references %q which has not been created", s.Address(), m[1])
				}
				return match
			}
			v, ok := h.Attr(m[2])
			if !ok {
				if firstErr == nil {
					firstErr = resource.Validationf("%s references unknown attribute %q of %s", s.Address(), m[2], h.Address())
				}
				return match
			}
			return v
		})
	}
	if firstErr != nil {
		return resource.Spec{}, firstErr
	}
	return out, nil
}
