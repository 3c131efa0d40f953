package mcpserver

// RecordLayout describes the records, instructions and error codes that
// MCP clients need to build and interpret transactions.
const RecordLayout = `# intentmarket record layout

All integers are little-endian. Strings are a u32 byte length followed by
UTF-8 bytes. Optional values are a tag byte (0 = none, 1 = some) followed
by the value. Stored accounts start with an 8-byte discriminator
(sha256("account:<Name>")[:8]) and are zero-padded to their full size.

## Intent (payload 1361 bytes, one per agent)

| field       | type        | bound           |
|-------------|-------------|-----------------|
| agent       | [32]byte    | owner           |
| title       | string      | <= 255 bytes    |
| description | string      | <= 1000 bytes   |
| category    | string?     | <= 50 bytes     |
| status      | u8          | 0 active, 1 fulfilled, 2 cancelled |
| created_at  | i64         | unix seconds    |
| bump        | u8          | address salt    |

Address: derive(["intent", agent], program_id).

## Match (payload 84 bytes)

| field       | type     | bound                     |
|-------------|----------|---------------------------|
| intent_a    | [32]byte | intent address            |
| intent_b    | [32]byte | intent address            |
| match_score | u16      | 0..=10000 (0.00-100.00 %) |
| status      | u8       | 0 pending, 1 accepted, 2 rejected, 3 completed |
| created_at  | i64      | unix seconds              |
| updated_at  | i64      | refreshed on status change |
| bump        | u8       | address salt              |

Address: derive(["match", intent_a, intent_b], program_id).

## Instructions

| name                | accounts                     | args                   |
|---------------------|------------------------------|------------------------|
| register_intent     | [intent]                     | title, description, category? |
| propose_match       | [match, intent_a, intent_b]  | match_score            |
| update_match_status | [match]                      | status (u8)            |
| update_intent_status | [intent]                    | status (u8): 0 active, 1 fulfilled, 2 cancelled |

The signer of register_intent owns the new intent. propose_match must be
signed by the agent of intent_a. update_match_status must be signed by the
match owner under the ledger's ownership policy (intent_a by default).
update_intent_status must be signed by the intent's agent. Any status may
follow any other. A signed transaction commits at most once; resubmitting
it fails with "transaction already processed".

## Errors

| code | name           | meaning                          |
|------|----------------|----------------------------------|
| 6000 | InvalidStatus  | status byte out of range         |
| 6001 | Unauthorized   | signer does not own the record   |
| 6002 | InvalidScore   | match_score above 10000          |
| 6003 | IntentNotFound | a linked intent does not exist   |
| 6004 | SelfMatch      | intent_a equals intent_b         |

Allocating an address twice fails with "already exists"; an oversized
text field fails with "field too long". A rejected transaction writes
nothing.
`
