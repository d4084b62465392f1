package codec

import "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

// NormalizeItem drops attributes whose value is explicitly empty (NULL, "",
// empty list, map, set or binary), recursively, so they decode to the Go zero
// value. Equality checks on decoded entities depend on this.
func NormalizeItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		if nv, keep := normalize(v); keep {
			out[k] = nv
		}
	}
	return out
}

func normalize(av types.AttributeValue) (types.AttributeValue, bool) {
	switch v := av.(type) {
	case nil:
		return nil, false
	case *types.AttributeValueMemberNULL:
		return nil, false
	case *types.AttributeValueMemberS:
		return v, v.Value != ""
	case *types.AttributeValueMemberB:
		return v, len(v.Value) > 0
	case *types.AttributeValueMemberSS:
		return v, len(v.Value) > 0
	case *types.AttributeValueMemberNS:
		return v, len(v.Value) > 0
	case *types.AttributeValueMemberBS:
		return v, len(v.Value) > 0
	case *types.AttributeValueMemberM:
		m := NormalizeItem(v.Value)
		return &types.AttributeValueMemberM{Value: m}, len(m) > 0
	case *types.AttributeValueMemberL:
		if len(v.Value) == 0 {
			return nil, false
		}
		// List positions are kept; emptied elements become NULL.
		list := make([]types.AttributeValue, len(v.Value))
		for i, elem := range v.Value {
			if ne, keep := normalize(elem); keep {
				list[i] = ne
			} else {
				list[i] = &types.AttributeValueMemberNULL{Value: true}
			}
		}
		return &types.AttributeValueMemberL{Value: list}, true
	default:
		return av, true
	}
}
