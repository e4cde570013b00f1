package tieredsession

import "context"

// target returns the collection a payload of size bytes belongs in, given
// the collection it currently occupies. The threshold is applied relative to
// the current collection: a hot record moves once it grows past the
// threshold and a cold one moves back once it fits.
func (s *Store) target(current Collection, size int) Collection {
	if s.nonVolatile {
		return current
	}

	switch current {
	case Hot:
		if size > s.sizeThreshold {
			return Cold
		}
	case Cold:
		if size <= s.sizeThreshold {
			return Hot
		}
	}
	return current
}

// maybeRelocate decides where a write of size bytes for an existing record
// must land. When the record has to change collection it is deleted from
// current first; the caller then inserts it into the returned collection.
// A failure between the two steps loses the record since the pair is not
// wrapped in a transaction.
func (s *Store) maybeRelocate(ctx context.Context, id string, current Collection, size int) (Collection, error) {
	to := s.target(current, size)
	if to == current {
		return current, nil
	}

	if err := s.records.Delete(ctx, current, id); err != nil {
		return current, storageErr("relocate", err)
	}

	s.logger.Debug("relocating session", "id", id, "from", current, "to", to, "size", size)
	return to, nil
}
