// Package mapping defines the bridge mapping artifact: the reviewable,
// hand-editable JSON document produced by generation and consumed by apply.
//
//	{
//	  "bridges": {
//	    "First Floor": [
//	      {"entity_id": "light.kitchen_1", "friendly_name": "Kitchen 1"}
//	    ],
//	    "Second Floor": []
//	  }
//	}
//
// Marshal output is deterministic: bridge keys sorted, entries in the order
// they were added, two-space indent and a trailing newline. Regenerating from
// unchanged inputs produces byte-identical files.
//
// Unmarshal accepts JSONC (comments and trailing commas) so operators can
// annotate the file while reviewing it.
package mapping
