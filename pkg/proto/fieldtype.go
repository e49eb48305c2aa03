package proto

// FieldType identifies the declared wire type of a column or bound
// parameter. Values follow the server's column-type bytes.
type FieldType byte

const (
	TypeDecimal    FieldType = 0x00
	TypeTiny       FieldType = 0x01
	TypeShort      FieldType = 0x02
	TypeLong       FieldType = 0x03
	TypeFloat      FieldType = 0x04
	TypeDouble     FieldType = 0x05
	TypeNull       FieldType = 0x06
	TypeTimestamp  FieldType = 0x07
	TypeLongLong   FieldType = 0x08
	TypeInt24      FieldType = 0x09
	TypeDate       FieldType = 0x0A
	TypeTime       FieldType = 0x0B
	TypeDatetime   FieldType = 0x0C
	TypeYear       FieldType = 0x0D
	TypeVarchar    FieldType = 0x0F
	TypeBit        FieldType = 0x10
	TypeJSON       FieldType = 0xF5
	TypeNewDecimal FieldType = 0xF6
	TypeEnum       FieldType = 0xF7
	TypeSet        FieldType = 0xF8
	TypeTinyBlob   FieldType = 0xF9
	TypeMediumBlob FieldType = 0xFA
	TypeLongBlob   FieldType = 0xFB
	TypeBlob       FieldType = 0xFC
	TypeVarString  FieldType = 0xFD
	TypeString     FieldType = 0xFE
	TypeGeometry   FieldType = 0xFF
)

func (t FieldType) String() string {
	switch t {
	case TypeDecimal:
		return "DECIMAL"
	case TypeTiny:
		return "TINYINT"
	case TypeShort:
		return "SMALLINT"
	case TypeLong:
		return "INT"
	case TypeFloat:
		return "FLOAT"
	case TypeDouble:
		return "DOUBLE"
	case TypeNull:
		return "NULL"
	case TypeTimestamp:
		return "TIMESTAMP"
	case TypeLongLong:
		return "BIGINT"
	case TypeInt24:
		return "MEDIUMINT"
	case TypeDate:
		return "DATE"
	case TypeTime:
		return "TIME"
	case TypeDatetime:
		return "DATETIME"
	case TypeYear:
		return "YEAR"
	case TypeVarchar:
		return "VARCHAR"
	case TypeBit:
		return "BIT"
	case TypeJSON:
		return "JSON"
	case TypeNewDecimal:
		return "DECIMAL"
	case TypeEnum:
		return "ENUM"
	case TypeSet:
		return "SET"
	case TypeTinyBlob:
		return "TINYBLOB"
	case TypeMediumBlob:
		return "MEDIUMBLOB"
	case TypeLongBlob:
		return "LONGBLOB"
	case TypeBlob:
		return "BLOB"
	case TypeVarString:
		return "VARSTRING"
	case TypeString:
		return "CHAR"
	case TypeGeometry:
		return "GEOMETRY"
	default:
		return "UNKNOWN"
	}
}
