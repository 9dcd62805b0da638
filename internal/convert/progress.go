package convert

// progressSampler suppresses per-file progress events until the fraction
// crosses into a new bucket.
type progressSampler struct {
	buckets    int
	lastBucket int
}

// newProgressSampler emits at most once per 1/buckets of progress.
func newProgressSampler(buckets int) *progressSampler {
	if buckets <= 0 {
		buckets = 100
	}
	return &progressSampler{buckets: buckets, lastBucket: -1}
}

// ShouldEmit reports whether value reaches a bucket not yet reported.
func (s *progressSampler) ShouldEmit(value float64) bool {
	bucket := int(value * float64(s.buckets))
	if value >= 1 {
		bucket = s.buckets
	}
	if bucket > s.lastBucket {
		s.lastBucket = bucket
		return true
	}
	return false
}

// overallFraction combines finished jobs with fractional in-flight progress,
// both expressed in parts per million of one job.
func overallFraction(done, inflightPPM int64, total int) float64 {
	if total <= 0 {
		return 1
	}
	v := (float64(done) + float64(inflightPPM)/1e6) / float64(total)
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
