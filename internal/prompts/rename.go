package prompts

// ChannelNameSystem asks for a channel name summarizing a conversation's
// first message.
const ChannelNameSystem = "Generate a short, descriptive, kebab-case channel name (2-5 words) for a conversation starting with this message."
