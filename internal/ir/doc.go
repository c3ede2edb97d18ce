// Package ir provides the value model and entity types shared by every
// other beacon package.
//
// This package contains type definitions and their JSON encodings only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Values are a closed set: String, Int, Double, Bool. Anything else is
//     rejected at the API boundary with ErrUnsupportedValue.
//   - A Double always encodes with a fraction or exponent so that an
//     insert/select round trip never turns it into an Int.
//   - Seq == 0 on an Event (ID == 0 on a DataPayload) means "not persisted".
//   - All JSON tags use snake_case.
package ir
