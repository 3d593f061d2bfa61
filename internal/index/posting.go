package index

import "github.com/domainsearch/engine/internal/domain"

// Posting is one document's occurrence of a term: which domain it is in,
// and how many times the term appears among that document's tokens (used
// for the BM25-style relevance score; domain labels are short, so this is
// usually 1).
type Posting struct {
	Domain string `json:"d"`
	Freq   int    `json:"f"`
}

// PostingList is a term's occurrences, always kept sorted by Domain so
// segment merges and binary search both work against it directly.
type PostingList []Posting

// TermEntry pairs a term with its full posting list, the unit a segment
// writer serializes.
type TermEntry struct {
	Term     string
	Postings PostingList
}

// StoredDoc is the subset of domain.Document persisted alongside the
// postings so a query can build a RankedHit without re-tokenizing or
// re-reading the original zonefile line.
type StoredDoc struct {
	Domain    string   `json:"domain"`
	Label     string   `json:"label"`
	TLD       string   `json:"tld"`
	Tokens    []string `json:"tokens"`
	Length    int      `json:"length"`
	HasHyphen bool     `json:"has_hyphen"`
}

func storedDocFromDocument(doc domain.Document) StoredDoc {
	return StoredDoc{
		Domain:    doc.Domain,
		Label:     doc.Label,
		TLD:       doc.TLD,
		Tokens:    doc.Tokens,
		Length:    doc.Length,
		HasHyphen: doc.HasHyphen,
	}
}

func (s StoredDoc) toDocument() domain.Document {
	return domain.Document{
		Domain:    s.Domain,
		Label:     s.Label,
		TLD:       s.TLD,
		Tokens:    s.Tokens,
		Length:    s.Length,
		HasHyphen: s.HasHyphen,
	}
}
