package history

import (
	"fmt"
	"time"

	"github.com/Arkanys/chronomodel/pkg/timefmt"
	"github.com/jackc/pgx/v4"
)

// Version is one row of a history table: a snapshot of a logical record over
// a validity interval. HID identifies the physical history row; RID is the
// logical record it versions. Upper layers treat HID as the row's identity
// so versions behave as first-class objects in collections.
type Version struct {
	HID        int64
	RID        int64
	ValidFrom  time.Time
	ValidTo    time.Time
	RecordedAt time.Time
	AsOfTime   time.Time
	Attributes map[string]interface{}
}

// ID returns the version's identity key, which is the history row id.
func (v *Version) ID() int64 {
	return v.HID
}

// ScanVersions drains rows into versions, splitting system columns from
// entity attributes. pk names the inherited logical key column.
func ScanVersions(rows pgx.Rows, pk string) ([]*Version, error) {
	defer rows.Close()
	var versions []*Version
	fields := rows.FieldDescriptions()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read version row: %w", err)
		}
		v := &Version{Attributes: make(map[string]interface{})}
		for i, f := range fields {
			name := string(f.Name)
			switch name {
			case "hid":
				v.HID, err = toInt64(values[i])
			case "valid_from":
				v.ValidFrom, err = toUTC(values[i])
			case "valid_to":
				v.ValidTo, err = toUTC(values[i])
			case "recorded_at":
				v.RecordedAt, err = toUTC(values[i])
			case "as_of_time":
				v.AsOfTime, err = toUTC(values[i])
			case "rid":
				v.RID, err = toInt64(values[i])
			case pk:
				v.RID, err = toInt64(values[i])
				v.Attributes[name] = values[i]
			default:
				v.Attributes[name] = values[i]
			}
			if err != nil {
				return nil, fmt.Errorf("decode column %s: %w", name, err)
			}
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return versions, nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected integer type %T", v)
	}
}

func toUTC(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		// A quoted instant projected as a column, such as the as-of CTE's
		// as_of_time, arrives as text.
		return timefmt.Parse(t)
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
	}
}
