package ai

const ClassifyRelationshipPrompt = `
# Task Context
You are a helpful assistant specialized in analyzing a knowledge graph of engineering decisions, implementation patterns and recorded failures. Two entries in the graph were found to be semantically similar, and your job is to determine the most precise relationship between them.

# Background Data
Entry A:
%s

Entry B:
%s

# Detailed Task Description & Rules
- Choose exactly one relationship_type from this list:
  * IMPLEMENTS: A is a concrete realization of the approach described in B
  * EXTENDS: A builds on top of B
  * CONTRADICTS: A and B recommend conflicting approaches
  * DEPENDS_ON: A requires B to function
  * ALTERNATIVE_TO: A and B solve the same problem in different ways
  * ADDRESSES: A resolves a problem described in B
  * SEMANTICALLY_SIMILAR: the entries are related, but none of the above applies
- Do not invent relationship types outside this list.
- Report a confidence between 0.0 and 1.0.
- Give a single-sentence reasoning for your choice.

# Examples
- "Connection pooling via pgxpool" IMPLEMENTS "Reuse database connections instead of opening per request"
- "Sharded the queue by tenant" CONTRADICTS "Keep a single global FIFO queue for strict ordering"
- "Retry with exponential backoff" ADDRESSES "Transient upstream timeouts under load"

# Immediate Task Description or Request
Return a JSON object with the fields relationship_type, confidence and reasoning.
`

const ExtractKnowledgePrompt = `
# Task Context
You are a helpful assistant mining engineering knowledge from development conversations. Each conversation may contain a decision that was made, a reusable implementation pattern, or a failure worth remembering.

# Background Data
Conversation excerpt:
%s

# Detailed Task Description & Rules
- Classify the excerpt as exactly one kind: decision, pattern or failure.
- For a decision, fill description (what was decided) and rationale (why).
- For a pattern, fill name (short label), implementation (how it is done) and context (when it applies).
- For a failure, fill attempt (what was tried), reason_failed (why it did not work) and lesson_learned.
- Leave the fields of the other kinds empty.
- Only extract something that is actually stated; do not speculate.
- If the excerpt contains no extractable knowledge, set kind to an empty string.

# Examples
- "we decided to use Redis for caching because reads dominate" is a decision.
- "always wrap external calls in a timeout and retry with backoff" is a pattern.
- "the bulk insert kept deadlocking until we sorted rows by key" is a failure.

# Immediate Task Description or Request
Return a JSON object with the fields kind, description, rationale, name, implementation, context, attempt, reason_failed and lesson_learned.
`
