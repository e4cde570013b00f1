package tieredsession

import "context"

// locate reports which collection holds id. When the id is present in both
// collections the hot one wins. found is false when neither holds it.
func (s *Store) locate(ctx context.Context, id string) (c Collection, found bool, err error) {
	var inHot, inCold bool

	if p, ok := s.records.(Prober); ok {
		inHot, inCold, err = p.Probe(ctx, id)
		if err != nil {
			return Hot, false, storageErr("locate", err)
		}
	} else {
		inHot, err = s.records.Exists(ctx, Hot, id)
		if err != nil {
			return Hot, false, storageErr("locate", err)
		}
		if !inHot {
			inCold, err = s.records.Exists(ctx, Cold, id)
			if err != nil {
				return Hot, false, storageErr("locate", err)
			}
		}
	}

	switch {
	case inHot:
		if inCold {
			s.logger.Warn("session present in both collections", "id", id)
		}
		return Hot, true, nil
	case inCold:
		return Cold, true, nil
	default:
		return s.defaultCollection, false, nil
	}
}
