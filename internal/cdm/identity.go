package cdm

// SurrogateKey derives the globally unique key for an entity instance.
// It is a pure, stable concatenation of the source-local natural key and
// the source tag, so re-ingesting the same source row always yields the
// same key, and numerically equal natural keys from different sources
// never collide ("101"+"A" -> "101-A", "101"+"B" -> "101-B").
func SurrogateKey(naturalKey, sourceID string) string {
	return naturalKey + "-" + sourceID
}
