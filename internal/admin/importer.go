package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/route-survey/internal/domain/quota"
)

var ErrBadSheet = errors.New("admin: bad import sheet")

// Колонки листа импорта. Первая строка — заголовок.
const (
	colQuestionnaire = iota
	colRoute
	colLimit
	colActive
)

type ImportRow struct {
	Line   int
	Key    quota.Key
	Limit  int
	Active *bool
}

type ImportReport struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// ParseLimits читает активный лист xlsx: questionnaire_id, route_id, limit,
// active (необязательно). Пустые строки пропускаются, любая ошибка
// формата отклоняет весь файл.
func ParseLimits(r io.Reader) ([]ImportRow, int, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: not an xlsx file: %w", ErrBadSheet, err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrBadSheet, err)
	}
	if len(rows) < 2 {
		return nil, 0, fmt.Errorf("%w: no data rows", ErrBadSheet)
	}
	if len(rows[0]) < 3 {
		return nil, 0, fmt.Errorf("%w: expected at least 3 columns (questionnaire_id, route_id, limit)", ErrBadSheet)
	}

	var (
		out     []ImportRow
		skipped int
		seen    = map[quota.Key]int{}
	)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		line := i + 1
		cell := func(c int) string {
			if c < len(row) {
				return strings.TrimSpace(row[c])
			}
			return ""
		}

		qid, rid := cell(colQuestionnaire), cell(colRoute)
		if qid == "" && rid == "" {
			skipped++
			continue
		}
		if qid == "" || rid == "" {
			return nil, 0, fmt.Errorf("%w: line %d: questionnaire_id and route_id are required", ErrBadSheet, line)
		}
		key := quota.Key{RouteID: rid, QuestionnaireID: qid}
		if prev, dup := seen[key]; dup {
			return nil, 0, fmt.Errorf("%w: line %d: %s already listed on line %d", ErrBadSheet, line, key, prev)
		}
		seen[key] = line

		limit, err := strconv.Atoi(cell(colLimit))
		if err != nil || limit < 0 {
			return nil, 0, fmt.Errorf("%w: line %d: bad limit %q", ErrBadSheet, line, cell(colLimit))
		}

		ir := ImportRow{Line: line, Key: key, Limit: limit}
		if s := cell(colActive); s != "" {
			active, ok := parseBool(s)
			if !ok {
				return nil, 0, fmt.Errorf("%w: line %d: bad active flag %q", ErrBadSheet, line, s)
			}
			ir.Active = &active
		}
		out = append(out, ir)
	}
	return out, skipped, nil
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "да", "+":
		return true, true
	case "0", "false", "no", "нет", "-":
		return false, true
	}
	return false, false
}

// ImportLimits применяет лимиты из xlsx. Файл сначала проверяется целиком,
// затем каждая строка пишется отдельной атомарной правкой.
func (m *Manager) ImportLimits(ctx context.Context, r io.Reader) (ImportReport, error) {
	rows, skipped, err := ParseLimits(r)
	if err != nil {
		return ImportReport{}, err
	}
	for _, ir := range rows {
		if _, err := m.quotas.Quota(ctx, ir.Key.RouteID, ir.Key.QuestionnaireID); err != nil {
			return ImportReport{}, fmt.Errorf("line %d: %w", ir.Line, err)
		}
	}

	rep := ImportReport{Skipped: skipped}
	for _, ir := range rows {
		limit := ir.Limit
		if _, err := m.store.AdminSet(ctx, ir.Key, quota.Patch{Limit: &limit, Active: ir.Active}); err != nil {
			return rep, fmt.Errorf("line %d: %w", ir.Line, err)
		}
		rep.Updated++
	}
	m.log.Info("quota limits imported", "updated", rep.Updated, "skipped", rep.Skipped)
	return rep, nil
}
