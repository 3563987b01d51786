package consolidate

import (
	"strings"

	"entity-resolution-service/internal/models"
	"entity-resolution-service/pkg/errors"
)

// Separator joins origin identifiers and roles in their serialized form
const Separator = ", "

// SerializeReferences renders references as the two order-correlated lists.
// The i-th role always belongs to the i-th origin identifier.
func SerializeReferences(refs []models.Reference) (originIDs, roles string) {
	if len(refs) == 0 {
		return "", ""
	}

	origins := make([]string, len(refs))
	names := make([]string, len(refs))
	for i, ref := range refs {
		origins[i] = ref.Origin
		names[i] = ref.Role.String()
	}
	return strings.Join(origins, Separator), strings.Join(names, Separator)
}

// ParseReferences reads back two lists written by SerializeReferences. Lists
// of different length are a SequenceMismatch; the pairs are never realigned.
func ParseReferences(entity, originIDs, roles string) ([]models.Reference, error) {
	origins := splitList(originIDs)
	names := splitList(roles)

	if len(origins) != len(names) {
		return nil, errors.SequenceMismatchError(entity, len(origins), len(names))
	}

	refs := make([]models.Reference, len(origins))
	for i := range origins {
		if origins[i] == "" {
			return nil, errors.MalformedFieldError("origin_ids", originIDs, "empty identifier in list").
				WithContext("entity", entity).
				WithContext("position", i)
		}
		role, err := models.ParseRole(names[i])
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryParse, errors.CodeMalformedField, "invalid role in reference list").
				WithContext("entity", entity).
				WithContext("position", i)
		}
		refs[i] = models.Reference{Origin: origins[i], Role: role}
	}
	return refs, nil
}

// splitList splits on the separator's comma so hand-edited lists with
// irregular spacing still parse. A blank list has no elements.
func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, strings.TrimSpace(Separator))
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
