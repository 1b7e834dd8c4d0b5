package lawdoc

import (
	"regexp"
	"strings"
)

var (
	chapterPattern = regexp.MustCompile(`(?i)^Chương\s+([IVXLCDM]+|\d+)`)
	articlePattern = regexp.MustCompile(`(?i)^Điều\s+(\d+[a-zđ]?)`)
	clausePattern  = regexp.MustCompile(`^(\d+)\.\s*(.*)`)
	pointPattern   = regexp.MustCompile(`^([a-zđA-ZĐ])\)\s*(.*)`)
)

// Structure is a parsed law.
type Structure struct {
	Preamble string
	Chapters []*Chapter
}

type Chapter struct {
	Title    string
	Content  string
	Articles []*Article
}

type Article struct {
	Number  string
	Content string
	Clauses []*Clause
}

type Clause struct {
	Number  string
	Content string
	Points  []*Point
}

type Point struct {
	Letter  string
	Content string
}

// Articles returns every article in document order.
func (s Structure) Articles() []*Article {
	var out []*Article
	for _, ch := range s.Chapters {
		out = append(out, ch.Articles...)
	}

	return out
}

// defaultChapter holds articles that appear before any chapter heading.
const defaultChapter = "Chuong 0"

// Parse splits a law's text into its hierarchy, one trimmed line at a time.
// Lines that start nothing continue the innermost open item.
func Parse(text string) Structure {
	var (
		s       Structure
		chapter *Chapter
		article *Article
		clause  *Clause
		point   *Point
	)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if chapterPattern.MatchString(line) {
			chapter = &Chapter{Title: line}
			s.Chapters = append(s.Chapters, chapter)
			article, clause, point = nil, nil, nil
			continue
		}

		if m := articlePattern.FindStringSubmatchIndex(line); m != nil {
			article = &Article{
				Number:  line[m[2]:m[3]],
				Content: strings.TrimSpace(strings.Trim(line[m[1]:], ". ")),
			}
			if chapter == nil {
				chapter = &Chapter{Title: defaultChapter}
				s.Chapters = append(s.Chapters, chapter)
			}
			chapter.Articles = append(chapter.Articles, article)
			clause, point = nil, nil
			continue
		}

		if m := clausePattern.FindStringSubmatch(line); m != nil && article != nil {
			clause = &Clause{Number: m[1], Content: m[2]}
			article.Clauses = append(article.Clauses, clause)
			point = nil
			continue
		}

		if m := pointPattern.FindStringSubmatch(line); m != nil && clause != nil {
			point = &Point{Letter: m[1], Content: m[2]}
			clause.Points = append(clause.Points, point)
			continue
		}

		switch {
		case point != nil:
			point.Content += " " + line
		case clause != nil:
			clause.Content += " " + line
		case article != nil:
			article.Content += " " + line
		case chapter != nil:
			chapter.Content = joinLine(chapter.Content, line)
		default:
			s.Preamble = joinLine(s.Preamble, line)
		}
	}

	return s
}

func joinLine(text, line string) string {
	if text == "" {
		return line
	}

	return text + " " + line
}
