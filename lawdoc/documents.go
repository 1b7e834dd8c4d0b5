package lawdoc

import (
	"regexp"
	"strconv"

	"github.com/google/uuid"

	"github.com/mhrlife/troly-index/vectordb"
)

const DocumentType = "Điều"

var (
	// A "Mục N. ..." section heading that ended up as the article's last line.
	trailingSection = regexp.MustCompile(`Mục [0-9]+[a-zđ]?. [^\n]+?(\n?)\z`)
	// The enactment clause closing the last article of a law.
	enactmentClause = regexp.MustCompile(`(?s)Luật này (?:đã )?được Quốc hội.+?(\n?)\z`)

	namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/mhrlife/troly-index/lawdoc"))
)

// LawID is the stable id of a law, shared by all of its articles as parent_id.
func LawID(subject string) string {
	return uuid.NewSHA1(namespace, []byte(subject)).String()
}

// ArticleID is stable across runs, so reindexing a law overwrites its documents.
func ArticleID(subject string, ordinal int, number string) string {
	return uuid.NewSHA1(namespace, []byte(subject+"|"+strconv.Itoa(ordinal)+"|"+number)).String()
}

// CleanArticleText drops a trailing section heading and the enactment clause.
func CleanArticleText(text string) string {
	text = trailingSection.ReplaceAllString(text, "$1")
	return enactmentClause.ReplaceAllString(text, "$1")
}

// BuildDocuments parses every law and returns one document per article.
// A subject seen twice keeps its first position and its last text.
func BuildDocuments(laws []Law) []vectordb.Document {
	var (
		order []string
		texts = make(map[string]string, len(laws))
	)
	for _, law := range laws {
		if _, ok := texts[law.Subject]; !ok {
			order = append(order, law.Subject)
		}
		texts[law.Subject] = law.Text
	}

	var docs []vectordb.Document
	for _, subject := range order {
		docs = append(docs, LawDocuments(Law{Subject: subject, Text: texts[subject]})...)
	}

	return docs
}

// LawDocuments returns the article documents of a single law.
func LawDocuments(law Law) []vectordb.Document {
	structure := Parse(law.Text)
	parentID := LawID(law.Subject)

	articles := structure.Articles()
	docs := make([]vectordb.Document, 0, len(articles))
	for i, article := range articles {
		name := article.Name()

		docs = append(docs, vectordb.Document{
			ID:      ArticleID(law.Subject, i, article.Number),
			Content: CleanArticleText(article.Text(false)),
			Meta: map[string]any{
				"name":      name,
				"type":      DocumentType,
				"citation":  name + " " + law.Subject,
				"law":       law.Subject,
				"parent_id": parentID,
				"text_head": law.Subject,
			},
		})
	}

	return docs
}
