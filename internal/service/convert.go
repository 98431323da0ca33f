package service

import (
	"fmt"
	"math"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// The dataset was loaded by several tools, so the same field can come back
// as int32, int64, double or string depending on the document.

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int32:
		return int64(t)
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case float32:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}

// normalizeNumber widens integers to int64 and collapses integral doubles so
// equal values print and compare the same way.
func normalizeNumber(v interface{}) interface{} {
	switch t := v.(type) {
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return t
	default:
		return v
	}
}

// groupID is the _id reported for an aggregation group.
func groupID(v interface{}) interface{} {
	if v == nil {
		return NullID
	}
	return normalizeNumber(v)
}

// groupKey identifies a group across two aggregations.
func groupKey(v interface{}) string {
	if v == nil {
		return NullID
	}
	return toString(v)
}

func toString(v interface{}) string {
	switch t := normalizeNumber(v).(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case primitive.ObjectID:
		return t.Hex()
	default:
		return fmt.Sprint(t)
	}
}

func asMap(v interface{}) map[string]interface{} {
	switch t := v.(type) {
	case bson.M:
		return t
	case map[string]interface{}:
		return t
	case bson.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			m[e.Key] = e.Value
		}
		return m
	default:
		return nil
	}
}
