package segment

// Posting is one document's occurrence of a term within a segment. This
// mirrors internal/index.Posting field-for-field but is defined
// independently so this package never imports internal/index — the
// engine converts between the two at the writer/reader boundary, avoiding
// an import cycle (internal/index already imports internal/index/segment).
type Posting struct {
	Domain string
	Freq   int
}

// TermEntry is a term and its full posting list, the unit Writer.Write
// serializes one at a time into the postings blob.
type TermEntry struct {
	Term     string
	Postings []Posting
}

// Doc is the stored-field record for one document, indexed by its
// position in the slice passed to Writer.Write (its "ordinal").
type Doc struct {
	Domain    string
	Label     string
	TLD       string
	Tokens    []string
	Length    int
	HasHyphen bool
}

// Info summarizes a freshly written or opened segment.
type Info struct {
	ID        string
	DocCount  int
	TermCount int
	CreatedAt int64
}
