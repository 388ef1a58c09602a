package dedup

import (
	"strings"

	"github.com/lehigh-university-libraries/shelfscan/internal/models"
)

var (
	authorPrefixes = []string{"written by ", "author: ", "by "}
	authorSuffixes = []string{" jr.", " sr.", " iii", " ii", " iv"}
)

// Result is the outcome of filtering a batch of candidates
type Result struct {
	Accepted   []models.CandidateBook
	Duplicates int
	// Ignored counts candidates with neither title nor author.
	Ignored int
}

// NormalizeTitle lowercases and trims a title
func NormalizeTitle(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

// NormalizeAuthor lowercases an author name, collapses whitespace and strips
// attribution prefixes and generational suffixes until none remain.
func NormalizeAuthor(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	for {
		before := s
		for _, p := range authorPrefixes {
			s = strings.TrimPrefix(s, p)
		}
		for _, suf := range authorSuffixes {
			s = strings.TrimSuffix(s, suf)
		}
		s = strings.TrimSpace(s)
		if s == before {
			return s
		}
	}
}

// NormalizeISBN removes hyphens and spaces and uppercases the check digit
func NormalizeISBN(isbn string) string {
	isbn = strings.ReplaceAll(strings.TrimSpace(isbn), "-", "")
	isbn = strings.ReplaceAll(isbn, " ", "")
	return strings.ToUpper(isbn)
}

// IsDuplicate reports whether a candidate matches an existing record by
// title and overlapping author, or by ISBN.
func IsDuplicate(c models.CandidateBook, r models.BookRecord) bool {
	if isbn := NormalizeISBN(c.ISBN); isbn != "" && isbn == NormalizeISBN(r.ISBN) {
		return true
	}
	return sameWork(NormalizeTitle(c.Title), NormalizeAuthor(c.Author), NormalizeTitle(r.Title), NormalizeAuthor(r.Author))
}

func sameWork(titleA, authorA, titleB, authorB string) bool {
	if titleA != titleB {
		return false
	}
	return strings.Contains(authorA, authorB) || strings.Contains(authorB, authorA)
}

type normalized struct {
	title  string
	author string
}

// Filter drops candidates that duplicate a record in existing.
// existing is copied up front so concurrent updates to the caller's slice
// cannot interleave with the comparison.
func Filter(candidates []models.CandidateBook, existing []models.BookRecord) Result {
	snapshot := make([]normalized, 0, len(existing))
	isbns := make(map[string]struct{}, len(existing))
	for _, r := range append([]models.BookRecord(nil), existing...) {
		snapshot = append(snapshot, normalized{title: NormalizeTitle(r.Title), author: NormalizeAuthor(r.Author)})
		if isbn := NormalizeISBN(r.ISBN); isbn != "" {
			isbns[isbn] = struct{}{}
		}
	}

	result := Result{Accepted: make([]models.CandidateBook, 0, len(candidates))}
	for _, c := range candidates {
		if c.IsEmpty() {
			result.Ignored++
			continue
		}
		if isbn := NormalizeISBN(c.ISBN); isbn != "" {
			if _, ok := isbns[isbn]; ok {
				result.Duplicates++
				continue
			}
		}
		title, author := NormalizeTitle(c.Title), NormalizeAuthor(c.Author)
		dup := false
		for _, n := range snapshot {
			if sameWork(title, author, n.title, n.author) {
				dup = true
				break
			}
		}
		if dup {
			result.Duplicates++
			continue
		}
		result.Accepted = append(result.Accepted, c)
	}
	return result
}
