package types

func (l *Lease) DeepCopy() *Lease {
	if l == nil {
		return nil
	}
	out := new(Lease)
	l.DeepCopyInto(out)
	return out
}

func (l *Lease) DeepCopyInto(to *Lease) {
	*to = *l
}

func (s *StashInfo) DeepCopy() *StashInfo {
	if s == nil {
		return nil
	}
	out := new(StashInfo)
	s.DeepCopyInto(out)
	return out
}

func (s *StashInfo) DeepCopyInto(to *StashInfo) {
	*to = *s
	to.Lease = s.Lease.DeepCopy()
}
