package domain

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Unknown replaces any message or thread field that could not be extracted.
const Unknown = "unknown"

// ThreadURL is an absolute, scheme-qualified thread address. It is the key
// shared by the discovery and extraction phases.
type ThreadURL string

func (u ThreadURL) String() string {
	return string(u)
}

var errNotAbsolute = errors.New("not an absolute http(s) url")

// NormalizeURL resolves href against base and returns its canonical form:
// lowercase scheme and host, no fragment.
func NormalizeURL(base *url.URL, href string) (ThreadURL, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", errors.New("empty href")
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}

	resolved := ref
	if base != nil {
		resolved = base.ResolveReference(ref)
	}

	resolved.Scheme = strings.ToLower(resolved.Scheme)
	resolved.Host = strings.ToLower(resolved.Host)
	resolved.Fragment = ""
	resolved.RawFragment = ""

	if (resolved.Scheme != "http" && resolved.Scheme != "https") || resolved.Host == "" {
		return "", fmt.Errorf("%q: %w", href, errNotAbsolute)
	}

	return ThreadURL(resolved.String()), nil
}

// URLSet is an unordered set of thread URLs.
type URLSet map[ThreadURL]struct{}

func NewURLSet(urls ...ThreadURL) URLSet {
	s := make(URLSet, len(urls))
	for _, u := range urls {
		s[u] = struct{}{}
	}
	return s
}

// Add inserts u and reports whether it was new.
func (s URLSet) Add(u ThreadURL) bool {
	if _, ok := s[u]; ok {
		return false
	}
	s[u] = struct{}{}
	return true
}

func (s URLSet) Has(u ThreadURL) bool {
	_, ok := s[u]
	return ok
}

func (s URLSet) Len() int {
	return len(s)
}

// Union adds every member of other to s and returns the number added.
func (s URLSet) Union(other URLSet) int {
	added := 0
	for u := range other {
		if s.Add(u) {
			added++
		}
	}
	return added
}

// Sorted returns the members in ascending order.
func (s URLSet) Sorted() []ThreadURL {
	out := make([]ThreadURL, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type Message struct {
	Author    string `json:"author"`
	Timestamp string `json:"timestamp"`
	Body      string `json:"body"`
}

type ThreadRecord struct {
	URL      ThreadURL `json:"url"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}
