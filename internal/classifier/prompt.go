package classifier

import (
	"fmt"
	"strings"
)

// ThreadContext is prepended to the group list when checking a thread, so the
// model can tell whether the criticism was solicited by the opening post.
type ThreadContext struct {
	Title        string
	FirstAuthor  string
	FirstMessage string
}

// Render produces the context preamble. It carries no "(index)" prefix, so
// prepending it to a formatted window does not shift group indices.
func (tc ThreadContext) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Thread Title: %s\n", tc.Title)
	if tc.FirstMessage != "" {
		fmt.Fprintf(&b, "First Thread Message: %s: ❝%s❞\n", tc.FirstAuthor, tc.FirstMessage)
	}
	return b.String()
}

func buildFlagPrompt(groups []string, exemptAuthors []string) string {
	return fmt.Sprintf(`
You will be given a list of Discord messages from a community channel. Your task is to identify messages that contain unsolicited and unconstructive criticism.

Messages are in the format "(index) user: ❝content❞". Here is the list of messages:

<discord_messages>
%s
</discord_messages>

Analyze each message to determine if it contains unsolicited and/or unconstructive criticism. Unconstructive criticism typically:
1. Offers negative feedback (which may or may not include specific issues)
2. Focuses solely on flaws without acknowledging any positive aspects or providing encouragement (this is the most important)
3. Lacks specific suggestions to fix stated issues

A message can be exempt from the above if it satisfies any of the following:
1. Is part of an ongoing multi-way discussion that has been going since before message index 0 (so you can't check whether it is solicited or not)
2. Contains enough positive feedback to justify not flagging it
3. The person asking for advice mentions they are ok with harsh criticism
4. The person critiquing is criticising their own work
5. The person being criticised is in the below list of people who have pre-opted-in to potentially harsh criticism

Here is that (potentially empty) list:
<waived_people>
%s
</waived_people>

Create a list of index entries for messages that contain unsolicited and unconstructive criticism, each with your confidence (low, medium or high). If no messages are problematic, return an empty list.
Take into account other messages by the same user to determine whether to flag a specific one. If that user included only negative criticism in one message, but positive in another, don't flag either.

Provide your response in the following format:
<analysis>
[Your brief thought process and reasoning for potentially problematic messages; not quoting the messages themselves]
</analysis>

<result>
[index:confidence entries for actually problematic messages, e.g. [2:high, 5:medium], or an empty list if none are found]
</result>
`, strings.Join(groups, "\n"), strings.Join(exemptAuthors, "\n"))
}

func buildFeedbackPrompt(groups []string, flagged []int, guidelines string) string {
	indices := make([]string, len(flagged))
	for i, idx := range flagged {
		indices[i] = fmt.Sprintf("%d", idx)
	}
	return fmt.Sprintf(`
As a Discord moderator, provide a brief warning/reminder for the following messages with indexes [%s]:
Construct your response addressing all messages at once, even if there are multiple. Don't try to address them individually.

Here is the conversation in question:
<discord_messages>
%s
</discord_messages>

Guidelines for feedback:
<guidelines>
%s
</guidelines>

Instructions:
1. Acknowledge the user's perspective
2. Note what about the guidelines they broke
3. Suggest improvements

Keep your response concise and constructive, while in a casual tone. Three sentences most.
Format your response within <response> tags.

<response>
[Your feedback here]
</response>
`, strings.Join(indices, ", "), strings.Join(groups, "\n"), guidelines)
}
