// Package mmlog layers profile/subprofile prefixes over the standard
// library logger: every line is tagged with the profile (and, if any,
// subprofile) it came from, carried through context.Context rather
// than goroutine-local state.
package mmlog

import (
	"context"
	"fmt"
	"log"
)

type ctxKey struct{}

type scope struct {
	profile    string
	subprofile string
}

// With returns a context tagged with profile (and, if non-empty,
// subprofile) for every mmlog call made through it.
func With(ctx context.Context, profile, subprofile string) context.Context {
	return context.WithValue(ctx, ctxKey{}, scope{profile: profile, subprofile: subprofile})
}

func prefix(ctx context.Context) string {
	s, ok := ctx.Value(ctxKey{}).(scope)
	if !ok || s.profile == "" {
		return ""
	}
	if s.subprofile == "" {
		return fmt.Sprintf("[%s]", s.profile)
	}
	return fmt.Sprintf("[%s][%s]", s.profile, s.subprofile)
}

// Infof logs at INFO level with the context's profile/subprofile prefix.
func Infof(ctx context.Context, format string, args ...interface{}) {
	log.Printf("%s: INFO: %s", prefix(ctx), fmt.Sprintf(format, args...))
}

// Warnf logs at WARN level.
func Warnf(ctx context.Context, format string, args ...interface{}) {
	log.Printf("%s: WARN: %s", prefix(ctx), fmt.Sprintf(format, args...))
}

// Errorf logs at ERROR level. It never panics or exits; callers decide
// whether an error is fatal.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	log.Printf("%s: ERROR: %s", prefix(ctx), fmt.Sprintf(format, args...))
}
