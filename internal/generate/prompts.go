package generate

// questionsPrompt asks for clarifying questions as a JSON array.
const questionsPrompt = `You are helping plan the following goal:

%s

Produce 3-5 clarifying questions that would most improve the plan.
Respond with ONLY a JSON array of objects with this shape:
[{"id": "short-id", "text": "question", "kind": "choice|multi_select|text", "options": ["..."]}]
Use "options" only for choice and multi_select kinds.`

// moreQuestionsPrompt asks whether more information is needed.
const moreQuestionsPrompt = `You are helping plan the following goal:

%s

The user has already answered:
%s

If you have enough information to plan, respond with ONLY:
{"sufficient": true, "reason": "why"}

Otherwise respond with ONLY a JSON array of additional questions:
[{"id": "short-id", "text": "question", "kind": "choice|multi_select|text", "options": ["..."]}]`

// planPrompt asks for a dependency-graphed task plan.
const planPrompt = `Break the following goal into executable tasks for autonomous
worker agents. Each task must be independently completable in an isolated
workspace.

Goal:
%s

Context from the user:
%s

Respond with ONLY a JSON array of tasks:
[{"id": "short-id", "title": "...", "description": "...", "agent_type": "coder|architect|reviewer", "depends_on": ["id"], "priority": 1}]
Dependencies must form a DAG. Keep the plan as parallel as possible.`

// refinePrompt asks for additional tasks addressing review feedback.
const refinePrompt = `A plan for the following goal has been executed:

%s

Completed tasks:
- %s

The reviewer gave this feedback:
%s

Respond with ONLY a JSON array of ADDITIONAL tasks (same shape as before)
that address the feedback. Do not repeat completed tasks.`
