package models

import (
	"math"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

const dateLayout = "2006-01-02"

var (
	dailyTokenFields  = []string{"inputTokens", "outputTokens", "cacheCreationTokens", "cacheReadTokens", "totalTokens"}
	modelTokenFields  = []string{"inputTokens", "outputTokens", "cacheCreationTokens", "cacheReadTokens"}
	totalsTokenFields = []string{"inputTokens", "outputTokens", "cacheCreationTokens", "cacheReadTokens", "totalTokens"}
)

// ParseUsageRecord validates a raw usage export and returns the parsed
// record. The returned error is a *ValidationError naming the first
// offending path in document order.
func ParseUsageRecord(data []byte) (UsageRecord, error) {
	if !gjson.ValidBytes(data) {
		return UsageRecord{}, invalid("", "malformed JSON")
	}
	rec, verr := parseRecord(gjson.ParseBytes(data))
	if verr != nil {
		return UsageRecord{}, verr
	}
	return rec, nil
}

func parseRecord(root gjson.Result) (UsageRecord, *ValidationError) {
	if !root.IsObject() {
		return UsageRecord{}, invalid("", "expected object")
	}

	daily := root.Get("daily")
	if !daily.Exists() {
		return UsageRecord{}, invalid("daily", "required")
	}
	if !daily.IsArray() {
		return UsageRecord{}, invalid("daily", "expected array")
	}

	var rec UsageRecord
	for i, item := range daily.Array() {
		entry, err := parseDaily(item, "daily."+strconv.Itoa(i))
		if err != nil {
			return UsageRecord{}, err
		}
		rec.Daily = append(rec.Daily, entry)
	}
	if rec.Daily == nil {
		rec.Daily = []DailyEntry{}
	}

	totals, err := parseTotals(root.Get("totals"), "totals")
	if err != nil {
		return UsageRecord{}, err
	}
	rec.Totals = totals
	return rec, nil
}

func parseDaily(item gjson.Result, path string) (DailyEntry, *ValidationError) {
	if !item.IsObject() {
		return DailyEntry{}, invalid(path, "expected object")
	}

	date := item.Get("date")
	if !date.Exists() {
		return DailyEntry{}, invalid(path+".date", "required")
	}
	if date.Type != gjson.String {
		return DailyEntry{}, invalid(path+".date", "expected string")
	}
	if _, err := time.Parse(dateLayout, date.Str); err != nil {
		return DailyEntry{}, invalid(path+".date", "expected YYYY-MM-DD date")
	}

	tokens, err := integerFields(item, path, dailyTokenFields)
	if err != nil {
		return DailyEntry{}, err
	}
	cost, err := numberField(item, path, "totalCost")
	if err != nil {
		return DailyEntry{}, err
	}

	models, err := stringList(item.Get("modelsUsed"), path+".modelsUsed")
	if err != nil {
		return DailyEntry{}, err
	}

	breakdowns := item.Get("modelBreakdowns")
	bpath := path + ".modelBreakdowns"
	if !breakdowns.Exists() {
		return DailyEntry{}, invalid(bpath, "required")
	}
	if !breakdowns.IsArray() {
		return DailyEntry{}, invalid(bpath, "expected array")
	}
	usages := []ModelUsage{}
	for j, b := range breakdowns.Array() {
		usage, err := parseModelUsage(b, bpath+"."+strconv.Itoa(j))
		if err != nil {
			return DailyEntry{}, err
		}
		usages = append(usages, usage)
	}

	return DailyEntry{
		Date:                date.Str,
		InputTokens:         tokens[0],
		OutputTokens:        tokens[1],
		CacheCreationTokens: tokens[2],
		CacheReadTokens:     tokens[3],
		TotalTokens:         tokens[4],
		TotalCost:           cost,
		ModelsUsed:          lo.Uniq(models),
		ModelBreakdowns:     usages,
	}, nil
}

func parseModelUsage(item gjson.Result, path string) (ModelUsage, *ValidationError) {
	if !item.IsObject() {
		return ModelUsage{}, invalid(path, "expected object")
	}
	name := item.Get("modelName")
	if !name.Exists() {
		return ModelUsage{}, invalid(path+".modelName", "required")
	}
	if name.Type != gjson.String {
		return ModelUsage{}, invalid(path+".modelName", "expected string")
	}
	tokens, err := integerFields(item, path, modelTokenFields)
	if err != nil {
		return ModelUsage{}, err
	}
	cost, err := numberField(item, path, "cost")
	if err != nil {
		return ModelUsage{}, err
	}
	return ModelUsage{
		ModelName:           name.Str,
		InputTokens:         tokens[0],
		OutputTokens:        tokens[1],
		CacheCreationTokens: tokens[2],
		CacheReadTokens:     tokens[3],
		Cost:                cost,
	}, nil
}

func parseTotals(item gjson.Result, path string) (TokenCostTotals, *ValidationError) {
	if !item.Exists() {
		return TokenCostTotals{}, invalid(path, "required")
	}
	if !item.IsObject() {
		return TokenCostTotals{}, invalid(path, "expected object")
	}
	tokens, err := integerFields(item, path, totalsTokenFields)
	if err != nil {
		return TokenCostTotals{}, err
	}
	cost, err := numberField(item, path, "totalCost")
	if err != nil {
		return TokenCostTotals{}, err
	}
	return TokenCostTotals{
		InputTokens:         tokens[0],
		OutputTokens:        tokens[1],
		CacheCreationTokens: tokens[2],
		CacheReadTokens:     tokens[3],
		TotalTokens:         tokens[4],
		TotalCost:           cost,
	}, nil
}

func numberField(obj gjson.Result, path, field string) (float64, *ValidationError) {
	v := obj.Get(field)
	fpath := path + "." + field
	if !v.Exists() {
		return 0, invalid(fpath, "required")
	}
	if v.Type != gjson.Number {
		return 0, invalid(fpath, "expected number")
	}
	if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
		return 0, invalid(fpath, "expected finite number")
	}
	return v.Num, nil
}

// maxSafeInteger is the largest magnitude a JSON number holds without losing
// integer precision.
const maxSafeInteger = 1 << 53

func integerFields(obj gjson.Result, path string, fields []string) ([]int64, *ValidationError) {
	out := make([]int64, len(fields))
	for i, field := range fields {
		n, err := numberField(obj, path, field)
		if err != nil {
			return nil, err
		}
		if n != math.Trunc(n) {
			return nil, invalid(path+"."+field, "expected integer")
		}
		if math.Abs(n) > maxSafeInteger {
			return nil, invalid(path+"."+field, "expected integer in range")
		}
		out[i] = int64(n)
	}
	return out, nil
}

func stringList(v gjson.Result, path string) ([]string, *ValidationError) {
	if !v.Exists() {
		return nil, invalid(path, "required")
	}
	if !v.IsArray() {
		return nil, invalid(path, "expected array")
	}
	out := []string{}
	for i, item := range v.Array() {
		if item.Type != gjson.String {
			return nil, invalid(path+"."+strconv.Itoa(i), "expected string")
		}
		out = append(out, item.Str)
	}
	return out, nil
}

