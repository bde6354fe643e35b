package workflow

import "github.com/codeready-toolchain/agentflow/pkg/model"

// conflictGroups partitions a wave's ready tasks into groups: a task joins
// the group of the first of its write files already claimed by an earlier
// task, or starts a new group. Groups are not merged, so a task whose write
// files overlap two existing groups joins only the first of them, and tasks
// of the other group may still run concurrently with it. The engine runs
// groups concurrently and tasks within a group sequentially. File-level serialization still happens through the File Lock
// Manager regardless; this pass only avoids dispatching known-conflicting
// tasks concurrently in the first place.
func conflictGroups(nodes []model.TaskNode, ready []model.TaskID) [][]model.TaskID {
	byID := make(map[model.TaskID]model.TaskNode, len(nodes))
	for _, n := range nodes {
		byID[n.TaskID] = n
	}

	var groups [][]model.TaskID
	claimed := make(map[string]int) // write-file path -> group index

	for _, id := range ready {
		node := byID[id]
		groupIdx := -1
		for _, f := range node.WriteFiles {
			if idx, ok := claimed[f]; ok {
				groupIdx = idx
				break
			}
		}
		if groupIdx == -1 {
			groupIdx = len(groups)
			groups = append(groups, nil)
		}
		groups[groupIdx] = append(groups[groupIdx], id)
		for _, f := range node.WriteFiles {
			claimed[f] = groupIdx
		}
	}
	return groups
}
