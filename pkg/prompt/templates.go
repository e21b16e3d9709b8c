// Package prompt holds the template library for every LLM call the
// research loop makes: planning, plan judgement, query generation,
// page-usefulness checks, context extraction, and report writing. It
// composes system and user messages; all state comes from parameters.
package prompt

// planGuideSystem frames the reasoning model as the guide for the search agent.
const planGuideSystem = "You are an advanced reasoning LLM that guides a following " +
	"search agent to search for relevant information."

// writingGuideSystem frames the reasoning model as the guide for the report writer.
const writingGuideSystem = "You are an advanced reasoning LLM that guides a following " +
	"writer to write a research report."

// plannerSystem is used for all query-generation calls.
const plannerSystem = "You are a systematic research planner."

// usefulnessSystem is used for the yes/no page relevance check.
const usefulnessSystem = "You are a strict and concise evaluator of research relevance."

// extractionSystem is used for per-page context extraction.
const extractionSystem = "You are an expert in extracting and summarizing relevant information."

// reportWriterSystem is the base system prompt for final report generation.
// A session's own system instruction, when present, is appended to it.
const reportWriterSystem = "You are a skilled report writer."

// initialPlanInstruction asks the reasoning model to expand the user query
// into a structured research plan.
const initialPlanInstruction = `You are an advanced reasoning LLM that specializes in structuring and refining research plans. Based on the given user query, you will generate a comprehensive research plan that expands on the topic, identifies key areas of investigation, and breaks down the research process into actionable steps for a search agent to execute.
Process:

Expand the Query:
1. Clarify and enrich the user's query by considering related aspects, possible interpretations, and necessary contextual details.
2. Identify any ambiguities and resolve them by assuming the most logical and useful framing of the problem.

Identify Key Research Areas:
1. Break down the expanded query into core themes, subtopics, or dimensions of investigation.
2. Determine what information is necessary to provide a comprehensive answer.

Define Research Steps:
1. Outline a structured plan with clear steps that guide the search agent on how to gather information.
2. Specify which sources or types of data are most relevant (e.g., academic papers, government reports, news sources, expert opinions).
3. Prioritize steps based on importance and logical sequence.

Suggest Search Strategies:
1. Recommend search terms, keywords, and boolean operators to optimize search efficiency.
2. Identify useful databases, journals, and sources where high-quality information can be found.
3. Suggest methodologies for verifying credibility and synthesizing findings.

NO EXPLANATIONS, write plans ONLY!`

// judgePlanInstruction asks the reasoning model to assess the gathered
// contexts against the current plan and produce the next iteration's plan.
const judgePlanInstruction = `You are an advanced reasoning LLM that specializes in evaluating research results and refining search strategies. Your task is to analyze the search agent's findings, assess their relevance and completeness, and generate a structured plan for the next search iteration. Your goal is to ensure a thorough and efficient research process that ultimately provides a comprehensive answer to the user's query. But still, if you think everything is enough, you can tell search agent to stop
Process:
1. **Evaluate Search Results:**
   - Analyze the retrieved search results to determine their relevance, credibility, and completeness.
   - Identify missing information, knowledge gaps, or weak sources.
   - Assess whether the search results sufficiently address the key research areas from the original plan.
   - If everything is enough, tell search agent to stop with your reason
2. **Determine Next Steps:**
   - Based on gaps identified, refine or expand the research focus.
   - Suggest additional search directions or alternative sources to explore.
   - If necessary, propose adjustments to search strategies, including keyword modifications, new sources, or filtering techniques.
3. **Generate an Updated Research Plan:**
   - Provide a structured step-by-step plan for the next search iteration.
   - Clearly outline what aspects need further investigation and where the search agent should focus next.
NO EXPLANATIONS, write plans ONLY!
Now, based on the above information and instruction, evaluate the search results and generate a refined research plan for the next iteration.`

// writingPlanInstruction asks the reasoning model to turn the aggregated
// contexts into a report outline.
const writingPlanInstruction = `You are an advanced reasoning LLM that specializes in generating writing plans for research reports. Based on the user's query and the aggregated research contexts, you will create a detailed plan for writing a comprehensive report. Your goal is to ensure a well-structured, coherent, and insightful report that effectively addresses the user's query.
Process:
1. **Analyze User Query and Contexts:**
   - Understand the core question the user is seeking to answer.
   - Identify the key themes, arguments, and evidence present in the aggregated contexts.
2. **Define Report Structure:**
   - Outline the main sections and subsections of the report.
   - Determine the logical flow of information and the order in which topics should be presented.
3. **Develop Content Plan:**
   - For each section, specify the key points to be covered, the evidence to be used, and the arguments to be made.
   - Identify any gaps in the information and suggest areas for further investigation.
4. **Specify Writing Style and Tone:**
   - Define the appropriate writing style (e.g., formal, informal, technical).
   - Determine the desired tone (e.g., objective, persuasive, analytical).
NO EXPLANATIONS, write plans ONLY!
Now, based on the above information and instruction, generate a detailed writing plan for the report.`

// firstQueriesInstruction generates the opening batch of search queries from
// a fresh plan, before any query has been executed.
const firstQueriesInstruction = `You are a search query generator. Based on the given research plan, generate a list of specific search queries that can be used to gather relevant information. The queries should be clear, concise, and focused on the key research areas identified in the plan. Return the queries as a Python list of strings. For example: ['query 1', 'query 2', 'query 3']`

// nextQueriesInstruction generates follow-up queries once earlier ones have
// run, or the terminal sentinel when research is judged complete.
const nextQueriesInstruction = `You are an analytical research assistant. Based on the research plan by a planning agent and the search queries performed so far, determine if further research is needed. If further research is needed, ONLY provide up to four new search queries as a Python list IN ONE LINE (for example, ['new query1', 'new query2']) in PLAIN text, NEVER wrap in code env. If you believe no further research is needed, respond with exactly <done>.
REMEMBER: Output ONLY a Python list or the token <done> WITHOUT any additional text or explanations.`

// pageUsefulInstruction is appended after the query and page content blocks.
const pageUsefulInstruction = "You are a research assistant. Given the user's query and the " +
	"content of a webpage, determine if the webpage contains " +
	"information relevant and useful for answering the query. " +
	"Respond with 'Yes' if the page is useful, or 'No' if it is " +
	"not. Do not include any extra text."

// extractContextInstruction is appended after the query and page content blocks.
const extractContextInstruction = "You are an expert information extractor. Given the user's query, " +
	"the search query that led to this page, and the webpage content, " +
	"extract all pieces of information that are relevant to " +
	"answering the user's query. Return only the relevant context " +
	"as plain text without commentary."

// finalReportInstruction closes the report-generation user message. The
// cite_number and bibliography requirements keep reports verifiable against
// the gathered contexts.
const finalReportInstruction = `You are an expert researcher and report writer. Based on the gathered contexts above and the original query, write a comprehensive, well-structured, and detailed report that addresses the query thoroughly. Include all relevant insights and conclusions without extraneous commentary. Math equations should use proper LaTeX syntax in markdown format, with \(\LaTeX{}\) for inline, $$\LaTeX{}$$ for block. Properly cite all the VALID and REAL sources inline from 'Gathered Relevant Contexts' with [cite_number] and also summarize the corresponding bibliography list with their urls in markdown format in the end of your report. Ensure that all VALID and REAL sources from 'Gathered Relevant Contexts' that you have used to write this report or back your statements are properly cited inline using the [cite_number] format (e.g., [1], [2], etc.). Then, append a complete bibliography section at the end of your report in markdown format, listing each source with its corresponding URL. Please NEVER omit the bibliography. REMEMBER: NEVER make up sources or citations, only use the provided contexts, if no source used or available, just write 'No available sources'.`
