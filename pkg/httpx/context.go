package httpx

import "context"

type ctxKey string

const (
	CtxKeySubjectType ctxKey = "subject_type"
	CtxKeySubjectID   ctxKey = "subject_id"
	CtxKeySessionID   ctxKey = "session_id"
)

// SubjectFromContext returns the resolved subject reference, if any.
func SubjectFromContext(ctx context.Context) (subjectType, subjectID string, ok bool) {
	subjectType, _ = ctx.Value(CtxKeySubjectType).(string)
	subjectID, _ = ctx.Value(CtxKeySubjectID).(string)
	return subjectType, subjectID, subjectType != "" && subjectID != ""
}

// SessionIDFromContext returns the caller's session correlation id.
func SessionIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(CtxKeySessionID).(string)
	return s
}
