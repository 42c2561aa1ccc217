package httpapi

import (
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/exef-pl/exef/access"
	"github.com/exef-pl/exef/model"
)

const defaultSearchLimit = 20

// searchCandidates loads every document belonging to projects in an entity,
// joining through tasks since documents carry no entity_id of their own.
func searchCandidates(entityDB interface {
	Select(dest interface{}, query string, args ...interface{}) error
}, entityID string) ([]model.Document, error) {
	var docs []model.Document
	err := entityDB.Select(&docs, `SELECT d.* FROM documents d
		JOIN tasks t ON t.id = d.task_id
		JOIN projects p ON p.id = t.project_id
		WHERE p.entity_id = ?
		ORDER BY d.document_date DESC`, entityID)
	return docs, err
}

func documentProjectID(entityDB interface {
	Get(dest interface{}, query string, args ...interface{}) error
}, documentID string) (string, error) {
	var row struct {
		ProjectID string `db:"project_id"`
	}
	err := entityDB.Get(&row, `SELECT t.project_id AS project_id FROM documents d
		JOIN tasks t ON t.id = d.task_id WHERE d.id = ?`, documentID)
	return row.ProjectID, err
}

func queryLimit(c echo.Context) int {
	limit := defaultSearchLimit
	if raw := c.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return limit
}

func matchesQuery(d model.Document, q string) bool {
	if q == "" {
		return true
	}
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(d.ContractorName), q) ||
		strings.Contains(strings.ToLower(d.Number), q) ||
		strings.Contains(d.ContractorNip, q)
}

// SearchDocuments free-text searches an entity's documents by contractor
// name, document number, or NIP, optionally excluding a project or document.
func (s *Server) SearchDocuments(c echo.Context) error {
	entityID := c.QueryParam("entity_id")
	if entityID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "brak entity_id")
	}
	if _, err := access.CheckEntityAccess(s.mainDB, entityID, identityID(c), false); err != nil {
		return err
	}

	entityDB, err := s.router.ResolveByEntity(s.mainDB, entityID)
	if err != nil {
		return err
	}
	docs, err := searchCandidates(entityDB, entityID)
	if err != nil {
		return err
	}

	excludeProject := c.QueryParam("exclude_project_id")
	excludeDocument := c.QueryParam("exclude_document_id")
	q := c.QueryParam("q")
	limit := queryLimit(c)

	result := make([]model.Document, 0, limit)
	for _, d := range docs {
		if d.ID == excludeDocument {
			continue
		}
		if excludeProject != "" {
			projectID, err := documentProjectID(entityDB, d.ID)
			if err == nil && projectID == excludeProject {
				continue
			}
		}
		if !matchesQuery(d, q) {
			continue
		}
		result = append(result, d)
		if len(result) >= limit {
			break
		}
	}
	return c.JSON(http.StatusOK, result)
}

// scoredDocument pairs a candidate document with its match score for the
// auto-suggest endpoint.
type scoredDocument struct {
	model.Document
	Score float64 `json:"score"`
}

// corporateFormTokens are excluded from the "shared words" name-similarity
// check so every sp. z o.o. in the database doesn't look alike.
var corporateFormTokens = map[string]bool{
	"sp.": true, "z": true, "o.o.": true, "s.a.": true, "sa": true,
	"spółka": true, "akcyjna": true, "jawna": true, "komandytowa": true, "s.c.": true,
}

func nameWords(name string) []string {
	fields := strings.Fields(strings.ToLower(name))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ",.")
		if f == "" || corporateFormTokens[f] {
			continue
		}
		words = append(words, f)
	}
	return words
}

func sharedWordCount(a, b string) int {
	wordsB := make(map[string]bool)
	for _, w := range nameWords(b) {
		wordsB[w] = true
	}
	count := 0
	for _, w := range nameWords(a) {
		if wordsB[w] {
			count++
		}
	}
	return count
}

// matchScore implements §6's auto-suggest scoring algorithm.
func matchScore(target, candidate model.Document) float64 {
	score := 0.0

	if target.ContractorNip != "" && target.ContractorNip == candidate.ContractorNip {
		score += 0.35
	}

	if target.AmountGross != nil && candidate.AmountGross != nil {
		t := target.AmountGross.InexactFloat64()
		cval := candidate.AmountGross.InexactFloat64()
		switch {
		case t == cval:
			score += 0.35
		case t != 0 && math.Abs(t-cval)/math.Abs(t) <= 0.01:
			score += 0.25
		case t != 0 && math.Abs(t-cval)/math.Abs(t) <= 0.05:
			score += 0.10
		}
	}

	tName := strings.ToLower(strings.TrimSpace(target.ContractorName))
	cName := strings.ToLower(strings.TrimSpace(candidate.ContractorName))
	switch {
	case tName != "" && tName == cName:
		score += 0.20
	case tName != "" && cName != "" && (strings.Contains(cName, tName) || strings.Contains(tName, cName)):
		score += 0.15
	case sharedWordCount(tName, cName) >= 2:
		score += 0.10
	}

	if target.DocumentDate != nil && candidate.DocumentDate != nil {
		delta := target.DocumentDate.Sub(*candidate.DocumentDate)
		if delta < 0 {
			delta = -delta
		}
		switch {
		case delta <= 7*24*time.Hour:
			score += 0.10
		case delta <= 30*24*time.Hour:
			score += 0.05
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// MatchDocuments auto-suggests likely-related documents for one document,
// ranked by match score, excluding documents from the same project.
func (s *Server) MatchDocuments(c echo.Context) error {
	docID := c.Param("id")
	entityDB, err := s.router.ResolveByResource(s.mainDB, docID)
	if err != nil {
		return err
	}
	var target model.Document
	if err := entityDB.Get(&target, `SELECT * FROM documents WHERE id = ?`, docID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "dokument nie znaleziony")
	}
	var task model.Task
	if err := entityDB.Get(&task, `SELECT * FROM tasks WHERE id = ?`, target.TaskID); err != nil {
		return err
	}
	if _, err := access.CheckProjectAccess(s.mainDB, entityDB, task.ProjectID, identityID(c), false); err != nil {
		return err
	}
	var project model.Project
	if err := entityDB.Get(&project, `SELECT * FROM projects WHERE id = ?`, task.ProjectID); err != nil {
		return err
	}

	docs, err := searchCandidates(entityDB, project.EntityID)
	if err != nil {
		return err
	}

	limit := queryLimit(c)
	candidates := make([]scoredDocument, 0, len(docs))
	for _, d := range docs {
		if d.ID == docID {
			continue
		}
		projectID, err := documentProjectID(entityDB, d.ID)
		if err == nil && projectID == task.ProjectID {
			continue
		}
		score := matchScore(target, d)
		if score <= 0 {
			continue
		}
		candidates = append(candidates, scoredDocument{Document: d, Score: score})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return c.JSON(http.StatusOK, candidates)
}
