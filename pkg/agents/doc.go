// Package agents resolves caller-facing model names onto upstream agents.
//
// Names are compared after normalization (lowercase, ASCII alphanumerics
// and CJK ideographs only) with a Ratcliff/Obershelp similarity ratio, so
// "nano banana" matches "Nano Banana Pro🔥". The Resolver keeps a TTL
// cached snapshot of the upstream catalog.
package agents
